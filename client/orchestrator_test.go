package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu       sync.Mutex
	replayed []string
	failIDs  map[string]bool
}

func (s *recordingSender) Replay(_ context.Context, req OfflineRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replayed = append(s.replayed, req.ID)
	if s.failIDs[req.ID] {
		return errors.New("backend unavailable")
	}
	return nil
}

func TestDrainReplaysInOrderAndRemoves(t *testing.T) {
	store := openTestQueue(t)
	sender := &recordingSender{}
	orc := NewOrchestrator(store, sender)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(OfflineRequest{Method: "POST", Target: "/x"})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	stats, err := orc.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Attempted != 3 || stats.Delivered != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	for i, id := range ids {
		if sender.replayed[i] != id {
			t.Fatalf("replay order wrong at %d: %s != %s", i, sender.replayed[i], id)
		}
	}
	if n, _ := store.Count(); n != 0 {
		t.Fatalf("queue not emptied, %d left", n)
	}
}

func TestDrainKeepsFailedRequests(t *testing.T) {
	store := openTestQueue(t)

	if _, err := store.Enqueue(OfflineRequest{Method: "POST", Target: "/x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	bad, _ := store.Enqueue(OfflineRequest{Method: "POST", Target: "/x"})

	sender := &recordingSender{failIDs: map[string]bool{bad: true}}
	orc := NewOrchestrator(store, sender)

	stats, err := orc.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Delivered != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	list, _ := store.List(0)
	if len(list) != 1 || list[0].ID != bad {
		t.Fatalf("expected only the failed request to remain, got %+v", list)
	}
	if list[0].RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", list[0].RetryCount)
	}
}

func TestDrainRetriesUntilDelivered(t *testing.T) {
	store := openTestQueue(t)
	id, _ := store.Enqueue(OfflineRequest{Method: "POST", Target: "/x"})

	sender := &recordingSender{failIDs: map[string]bool{id: true}}
	orc := NewOrchestrator(store, sender)

	// Many failed passes only climb the counter; the request stays pending.
	for i := 0; i < 7; i++ {
		stats, err := orc.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain %d: %v", i, err)
		}
		if stats.Attempted != 1 || stats.Failed != 1 {
			t.Fatalf("pass %d stats = %+v", i, stats)
		}
	}
	list, _ := store.List(0)
	if len(list) != 1 || list[0].RetryCount != 7 {
		t.Fatalf("expected request pending with 7 retries, got %+v", list)
	}

	// Backend recovers: the next pass delivers and empties the queue.
	sender.mu.Lock()
	sender.failIDs = nil
	sender.mu.Unlock()
	stats, err := orc.Drain(context.Background())
	if err != nil {
		t.Fatalf("final Drain: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("recovered backend should deliver, stats = %+v", stats)
	}
	if n, _ := store.Count(); n != 0 {
		t.Fatalf("queue not emptied, %d left", n)
	}
}

func TestDrainPurgesExpiredBeforeReplay(t *testing.T) {
	store := openTestQueue(t)
	if _, err := store.Enqueue(OfflineRequest{
		Method:    "POST",
		Target:    "/x",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	sender := &recordingSender{}
	orc := NewOrchestrator(store, sender)
	stats, err := orc.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Purged != 1 || stats.Attempted != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestConcurrentDrainsCoalesce(t *testing.T) {
	store := openTestQueue(t)
	if _, err := store.Enqueue(OfflineRequest{Method: "POST", Target: "/x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	slow := SenderFunc(func(context.Context, OfflineRequest) error {
		close(started)
		<-release
		return nil
	})
	orc := NewOrchestrator(store, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := orc.Drain(context.Background()); err != nil {
			t.Errorf("Drain: %v", err)
		}
	}()

	<-started
	// Second drain while the first is mid-flight must no-op, not replay
	// the same request twice.
	stats, err := orc.Drain(context.Background())
	if err != nil {
		t.Fatalf("overlapping Drain: %v", err)
	}
	if stats.Attempted != 0 {
		t.Fatalf("overlapping drain did work: %+v", stats)
	}
	close(release)
	wg.Wait()
}
