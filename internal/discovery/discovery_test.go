package discovery

import (
	"testing"
	"time"
)

func TestDiscover_RespondersReportLoad(t *testing.T) {
	groupAddr := "224.3.30.30:19995"

	r1, err := NewResponder(groupAddr)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	defer r1.Stop()
	go r1.Run("127.0.0.1:19001", func() int { return 3 })

	r2, err := NewResponder(groupAddr)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	defer r2.Stop()
	go r2.Run("127.0.0.1:19002", func() int { return 7 })

	time.Sleep(50 * time.Millisecond) // let both responders finish joining

	records, err := Discover(groupAddr, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("Discover found no responders")
	}
	seenAddrs := make(map[string]bool)
	for _, rec := range records {
		if rec.Load != 3 && rec.Load != 7 {
			t.Errorf("unexpected load %d from %s", rec.Load, rec.Address)
		}
		seenAddrs[rec.Address] = true
	}
	if !seenAddrs["127.0.0.1:19001"] || !seenAddrs["127.0.0.1:19002"] {
		t.Errorf("records = %+v, want both 127.0.0.1:19001 and 127.0.0.1:19002", records)
	}
}

func TestDiscover_NoResponders(t *testing.T) {
	records, err := Discover("224.3.30.31:19994", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Discover = %v, want empty", records)
	}
}

func TestResponder_StopIsIdempotent(t *testing.T) {
	r, err := NewResponder("224.3.30.32:19993")
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	go r.Run("127.0.0.1:19003", func() int { return 0 })
	time.Sleep(10 * time.Millisecond)
	r.Stop()
	r.Stop() // must not panic or block
}
