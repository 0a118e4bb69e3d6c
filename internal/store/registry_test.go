package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInsertAndGetReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(&Session{ID: "abc", IP: "192.168.1.7", Port: 50211, Active: true})

	got, ok := reg.Get("abc")
	if !ok {
		t.Fatal("Get() did not find inserted session")
	}
	if got.IP != "192.168.1.7" || got.Port != 50211 || !got.Active {
		t.Errorf("Get() = %+v, fields do not match insert", got)
	}

	// Mutating the copy must not leak back into the registry.
	got.CurrentFile = "stray.bin"
	again, _ := reg.Get("abc")
	if again.CurrentFile != "" {
		t.Errorf("mutation of returned copy leaked into registry: %q", again.CurrentFile)
	}
}

func TestGetMissing(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get("nope"); ok {
		t.Error("Get() reported an absent session as present")
	}
}

func TestUpdateMissingReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	if reg.Update("nope", func(s *Session) { s.Active = false }) {
		t.Error("Update() reported success for an absent session")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(&Session{ID: "abc"})
	reg.Remove("abc")
	reg.Remove("abc")
	reg.Remove("never-existed")
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after removals, want 0", reg.Len())
	}
}

func TestConcurrentUpdatesAreAtomic(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(&Session{ID: "abc", Active: true})

	const (
		workers    = 8
		increments = 500
	)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				reg.Update("abc", func(s *Session) {
					s.BytesReceived += 10
				})
			}
		}()
	}
	wg.Wait()

	got, _ := reg.Get("abc")
	if want := uint64(workers * increments * 10); got.BytesReceived != want {
		t.Errorf("BytesReceived = %d after concurrent updates, want %d", got.BytesReceived, want)
	}
}

func TestSnapshotOrderedByConnectTime(t *testing.T) {
	reg := NewRegistry()
	base := time.Now()
	reg.Insert(&Session{ID: "newest", ConnectedAt: base.Add(2 * time.Second)})
	reg.Insert(&Session{ID: "oldest", ConnectedAt: base})
	reg.Insert(&Session{ID: "middle", ConnectedAt: base.Add(time.Second)})

	snap := reg.Snapshot()
	want := []string{"oldest", "middle", "newest"}
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() returned %d sessions, want %d", len(snap), len(want))
	}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("Snapshot()[%d].ID = %q, want %q", i, snap[i].ID, id)
		}
	}
}

func TestSnapshotTiesBreakOnID(t *testing.T) {
	reg := NewRegistry()
	at := time.Now()
	reg.Insert(&Session{ID: "b", ConnectedAt: at})
	reg.Insert(&Session{ID: "a", ConnectedAt: at})

	snap := reg.Snapshot()
	if snap[0].ID != "a" || snap[1].ID != "b" {
		t.Errorf("Snapshot() tie order = [%s %s], want [a b]", snap[0].ID, snap[1].ID)
	}
}

func TestForEachActiveSkipsInactive(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 5; i++ {
		reg.Insert(&Session{ID: fmt.Sprintf("s%d", i), Active: i%2 == 0})
	}

	seen := map[string]bool{}
	reg.ForEachActive(func(s Session) {
		seen[s.ID] = true
	})
	if len(seen) != 3 {
		t.Fatalf("ForEachActive visited %d sessions, want 3", len(seen))
	}
	for _, id := range []string{"s0", "s2", "s4"} {
		if !seen[id] {
			t.Errorf("ForEachActive skipped active session %s", id)
		}
	}
}

func TestForEachActiveRunsOutsideLock(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(&Session{ID: "abc", Active: true})

	// fn re-enters the registry; this deadlocks if the lock were held.
	done := make(chan struct{})
	go func() {
		reg.ForEachActive(func(s Session) {
			reg.Update(s.ID, func(live *Session) { live.CurrentFile = "a.txt" })
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForEachActive held the registry lock while running fn")
	}

	got, _ := reg.Get("abc")
	if got.CurrentFile != "a.txt" {
		t.Errorf("CurrentFile = %q, want a.txt", got.CurrentFile)
	}
}
