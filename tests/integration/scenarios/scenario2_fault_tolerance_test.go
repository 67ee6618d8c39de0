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

// TestScenario_FaultTolerance_SurvivesWorkerLeavingBetweenRounds starts two
// real workers, runs a round across both, crashes one outright, and checks
// a second round still completes correctly by discovering and using only
// the survivor.
func TestScenario_FaultTolerance_SurvivesWorkerLeavingBetweenRounds(t *testing.T) {
	groupAddr := "224.3.31.10:20010"

	cfgA := config.DefaultConfig()
	cfgA.ListenAddr = "127.0.0.1:0"
	cfgA.MulticastGroupAddr = groupAddr
	cfgA.QueuePollInterval = 2
	registryA := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registryA)
	srvA := worker.NewServer(cfgA, registryA, nil, nil)
	if err := srvA.Start(); err != nil {
		t.Fatalf("worker A Start: %v", err)
	}

	cfgB := config.DefaultConfig()
	cfgB.ListenAddr = "127.0.0.1:0"
	cfgB.MulticastGroupAddr = groupAddr
	cfgB.QueuePollInterval = 2
	registryB := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registryB)
	srvB := worker.NewServer(cfgB, registryB, nil, nil)
	if err := srvB.Start(); err != nil {
		t.Fatalf("worker B Start: %v", err)
	}
	t.Cleanup(srvB.Stop)

	time.Sleep(50 * time.Millisecond)

	cfg := config.DefaultConfig()
	cfg.MulticastGroupAddr = groupAddr
	cfg.DiscoveryWindow = 200
	cfg.ChunkSize = 2
	cfg.InitialTimeout = 500
	cfg.QueuePollInterval = 2

	engine := dispatch.NewEngine(cfg, nil, nil)
	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)
	client := dispatch.NewClient(engine, registry)

	data := ints(10)
	got, err := client.Map("add_constant", []any{10}, data)
	if err != nil {
		t.Fatalf("Map with both workers up: %v", err)
	}
	for i, v := range got {
		if v.(int) != i+10 {
			t.Errorf("round 1 result[%d] = %v, want %d", i, v, i+10)
		}
	}

	srvA.Stop()
	time.Sleep(50 * time.Millisecond) // let A's responder leave the group

	got, err = client.Map("add_constant", []any{20}, data)
	if err != nil {
		t.Fatalf("Map after worker A left: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("round 2 result length = %d, want 10", len(got))
	}
	for i, v := range got {
		if v.(int) != i+20 {
			t.Errorf("round 2 result[%d] = %v, want %d", i, v, i+20)
		}
	}
}

func TestScenario_LocalFallback_NoWorkersDiscovered(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MulticastGroupAddr = "224.3.31.11:20011" // nothing ever joins this group
	cfg.DiscoveryWindow = 80
	cfg.ChunkSize = 4

	engine := dispatch.NewEngine(cfg, nil, nil)
	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)
	client := dispatch.NewClient(engine, registry)

	data := ints(6)
	got, err := client.Map("add_constant", []any{100}, data)
	if err != nil {
		t.Fatalf("Map (local fallback): %v", err)
	}
	for i, v := range got {
		if v.(int) != i+100 {
			t.Errorf("result[%d] = %v, want %d", i, v, i+100)
		}
	}

	sum, err := client.Reduce("sum", nil, got)
	if err != nil {
		t.Fatalf("Reduce (local fallback): %v", err)
	}
	want := 0
	for _, v := range got {
		want += v.(int)
	}
	if sum.(int) != want {
		t.Errorf("Reduce (local fallback) = %v, want %d", sum, want)
	}
}
