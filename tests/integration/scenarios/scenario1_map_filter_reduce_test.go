package scenarios

import (
	"testing"
	"time"

	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/dispatch"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/worker"
	"github.com/loadshard/parallelogram/internal/workerfuncs"
)

func sharedConfig(groupAddr string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.MulticastGroupAddr = groupAddr
	cfg.DiscoveryWindow = 300
	cfg.ChunkSize = 4
	cfg.InitialTimeout = 1000
	cfg.QueuePollInterval = 2
	return cfg
}

func startWorkerPool(t *testing.T, groupAddr string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		cfg := config.DefaultConfig()
		cfg.ListenAddr = "127.0.0.1:0"
		cfg.MulticastGroupAddr = groupAddr
		cfg.QueuePollInterval = 2

		registry := ops.NewRegistry()
		workerfuncs.RegisterBuiltins(registry)

		srv := worker.NewServer(cfg, registry, nil, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("worker Start: %v", err)
		}
		t.Cleanup(srv.Stop)
	}
}

func ints(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestScenario_MapFilterReduce_AcrossWorkers(t *testing.T) {
	t.Log("=== Scenario: map +1, filter even, reduce sum, across discovered workers ===")
	groupAddr := "224.3.31.1:20001"
	startWorkerPool(t, groupAddr, 3)
	time.Sleep(50 * time.Millisecond) // let responders join before the first probe

	cfg := sharedConfig(groupAddr)
	engine := dispatch.NewEngine(cfg, nil, nil)
	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)
	client := dispatch.NewClient(engine, registry)

	data := ints(50)

	mapped, err := client.Map("add_constant", []any{1}, data)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(mapped) != 50 {
		t.Fatalf("mapped length = %d, want 50", len(mapped))
	}
	for i, v := range mapped {
		if v.(int) != i+1 {
			t.Fatalf("mapped[%d] = %v, want %d", i, v, i+1)
		}
	}

	filtered, err := client.Filter("is_even", nil, mapped)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	for _, v := range filtered {
		if v.(int)%2 != 0 {
			t.Fatalf("filtered value %v is not even", v)
		}
	}

	sum, err := client.Reduce("sum", nil, filtered)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	want := 0
	for _, v := range filtered {
		want += v.(int)
	}
	if sum.(int) != want {
		t.Errorf("Reduce sum = %v, want %d", sum, want)
	}
}

func TestScenario_MapFilterReduce_SmallList(t *testing.T) {
	groupAddr := "224.3.31.2:20002"
	startWorkerPool(t, groupAddr, 2)
	time.Sleep(50 * time.Millisecond)

	cfg := sharedConfig(groupAddr)
	engine := dispatch.NewEngine(cfg, nil, nil)
	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)
	client := dispatch.NewClient(engine, registry)

	data := ints(3)
	mapped, err := client.Map("multiply_constant", []any{3}, data)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	want := []int{0, 3, 6}
	for i, v := range mapped {
		if v.(int) != want[i] {
			t.Errorf("mapped[%d] = %v, want %d", i, v, want[i])
		}
	}
}

func TestScenario_Reduce_EmptyFilterResultIsError(t *testing.T) {
	groupAddr := "224.3.31.3:20003"
	startWorkerPool(t, groupAddr, 1)
	time.Sleep(50 * time.Millisecond)

	cfg := sharedConfig(groupAddr)
	engine := dispatch.NewEngine(cfg, nil, nil)
	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)
	client := dispatch.NewClient(engine, registry)

	data := ints(5) // 0..4, none greater than 10
	filtered, err := client.Filter("greater_than", []any{10}, data)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("filtered = %v, want empty", filtered)
	}

	_, err = client.Reduce("sum", nil, filtered)
	if err != ops.ErrEmptyInput {
		t.Errorf("Reduce(empty) = %v, want ErrEmptyInput", err)
	}
}
