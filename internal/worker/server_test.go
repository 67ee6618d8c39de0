package worker

import (
	"net"
	"testing"
	"time"

	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/wire"
)

func testServerConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MulticastGroupAddr = "224.3.30.20:19996"
	cfg.QueuePollInterval = 2
	return cfg
}

func TestServer_ProcessesMapRequest(t *testing.T) {
	registry := ops.NewRegistry()
	registry.RegisterMap("double", func(args ...any) ops.MapFunc {
		return func(elt any, _ int) any { return elt.(int) * 2 }
	})

	srv := NewServer(testServerConfig(), registry, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := wire.Request{
		Op:    ops.Map,
		Func:  ops.FuncToken{Op: ops.Map, Name: "double"},
		Chunk: []any{1, 2, 3},
		Index: 0,
	}
	if err := wire.WriteRequest(conn, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Err != "" {
		t.Fatalf("response error: %s", resp.Err)
	}
	want := []any{2, 4, 6}
	if len(resp.Chunk) != len(want) {
		t.Fatalf("chunk length = %d, want %d", len(resp.Chunk), len(want))
	}
	for i, v := range resp.Chunk {
		if v.(int) != want[i].(int) {
			t.Errorf("chunk[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestServer_UnknownOperationReturnsSentinel(t *testing.T) {
	registry := ops.NewRegistry()
	srv := NewServer(testServerConfig(), registry, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := wire.Request{
		Op:    ops.Operation("bogus"),
		Chunk: []any{1},
	}
	if err := wire.WriteRequest(conn, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Err != ops.ErrUnknownOp.Error() {
		t.Errorf("response err = %q, want %q", resp.Err, ops.ErrUnknownOp.Error())
	}
}

func TestServer_UnregisteredHandlerReturnsError(t *testing.T) {
	registry := ops.NewRegistry()
	srv := NewServer(testServerConfig(), registry, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := wire.Request{
		Op:    ops.Map,
		Func:  ops.FuncToken{Op: ops.Map, Name: "does_not_exist"},
		Chunk: []any{1},
	}
	if err := wire.WriteRequest(conn, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Err == "" {
		t.Error("expected a non-empty error for an unregistered handler name")
	}
}
