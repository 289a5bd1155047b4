package mesh_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/gomesh/internal/mesh"
)

func discoveryPacket(sender uint32, ttl uint8, path ...uint32) mesh.Packet {
	var p mesh.Packet
	p.MessageType = mesh.MessageDiscovery
	p.SenderID = sender
	p.TTL = ttl
	for _, id := range path {
		p.AppendPath(id)
	}
	return p
}

func TestForwardQueueEnqueueRejectsLoop(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(5, mesh.DefaultSeenCacheMaxAgeMs)
	p := discoveryPacket(1, 5, 1, 5) // self (5) already in path

	err := q.Enqueue(&p, 0)
	if !errors.Is(err, mesh.ErrLoop) {
		t.Fatalf("got %v, want ErrLoop", err)
	}
	if q.Stats().Loops != 1 {
		t.Fatalf("Loops stat = %d, want 1", q.Stats().Loops)
	}
}

func TestForwardQueueEnqueueRejectsDuplicate(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(99, mesh.DefaultSeenCacheMaxAgeMs)
	p1 := discoveryPacket(1, 5, 1)
	p2 := discoveryPacket(1, 5, 2) // same (sender,ttl) -> same message id, different path

	if err := q.Enqueue(&p1, 0); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	err := q.Enqueue(&p2, 0)
	if !errors.Is(err, mesh.ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
	if q.Stats().Duplicates != 1 {
		t.Fatalf("Duplicates stat = %d, want 1", q.Stats().Duplicates)
	}
}

func TestForwardQueueEnqueueRejectsOverflow(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(0, mesh.DefaultSeenCacheMaxAgeMs)
	for i := uint32(1); i <= mesh.MaxQueueSize; i++ {
		p := discoveryPacket(i, 5, i)
		if err := q.Enqueue(&p, 0); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	overflow := discoveryPacket(mesh.MaxQueueSize+1, 5, mesh.MaxQueueSize+1)
	err := q.Enqueue(&overflow, 0)
	if !errors.Is(err, mesh.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
	if q.Stats().Overflows != 1 {
		t.Fatalf("Overflows stat = %d, want 1", q.Stats().Overflows)
	}
}

func TestForwardQueueDequeuePriorityOrder(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(0, mesh.DefaultSeenCacheMaxAgeMs)
	low := discoveryPacket(1, 2, 1)  // priority 253, lower ttl => higher priority value => served later
	high := discoveryPacket(2, 9, 2) // priority 246

	if err := q.Enqueue(&low, 0); err != nil {
		t.Fatalf("Enqueue low: %v", err)
	}
	if err := q.Enqueue(&high, 0); err != nil {
		t.Fatalf("Enqueue high: %v", err)
	}

	first, ok := q.Dequeue()
	if !ok {
		t.Fatal("Dequeue returned false with entries present")
	}
	if first.SenderID != 2 {
		t.Fatalf("first dequeued sender = %d, want 2 (ttl=9 carries higher forwarding priority)", first.SenderID)
	}

	second, ok := q.Dequeue()
	if !ok || second.SenderID != 1 {
		t.Fatalf("second dequeued sender = %v, want 1", second)
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on empty queue returned true")
	}
}

func TestForwardQueueStatsInvariant(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(0, mesh.DefaultSeenCacheMaxAgeMs)

	good := discoveryPacket(1, 5, 1)
	dup := discoveryPacket(1, 5, 2)
	loop := discoveryPacket(1, 5, 0, 1) // contains selfID 0

	q.Enqueue(&good, 0)
	q.Enqueue(&dup, 0)
	q.Enqueue(&loop, 0)
	for i := uint32(2); i <= mesh.MaxQueueSize; i++ {
		p := discoveryPacket(i, 5, i)
		q.Enqueue(&p, 0)
	}
	overflow := discoveryPacket(12345, 5, 12345)
	q.Enqueue(&overflow, 0)

	stats := q.Stats()
	held := q.Len()
	if stats.Enqueued != uint64(held) {
		t.Fatalf("Enqueued (%d) should equal currently-held (%d) since nothing has been dequeued yet",
			stats.Enqueued, held)
	}
	if stats.Duplicates != 1 {
		t.Fatalf("Duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.Loops != 1 {
		t.Fatalf("Loops = %d, want 1", stats.Loops)
	}
	if stats.Overflows != 1 {
		t.Fatalf("Overflows = %d, want 1", stats.Overflows)
	}
}

func TestForwardQueuePruneSeenCache(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(0, 1000)
	p := discoveryPacket(1, 5, 1)
	q.Enqueue(&p, 0)
	if q.SeenCount() != 1 {
		t.Fatalf("SeenCount() = %d, want 1", q.SeenCount())
	}

	removed := q.PruneSeenCache(2000) // 2000 - 0 = 2000 > maxAge 1000
	if removed != 1 {
		t.Fatalf("PruneSeenCache removed %d, want 1", removed)
	}
	if q.SeenCount() != 0 {
		t.Fatalf("SeenCount() after prune = %d, want 0", q.SeenCount())
	}

	// The same (sender,ttl) is no longer a duplicate once its seen-cache
	// entry has aged out.
	p2 := discoveryPacket(1, 5, 2)
	if err := q.Enqueue(&p2, 2000); err != nil {
		t.Fatalf("Enqueue after prune: %v", err)
	}
}

func TestForwardQueueClear(t *testing.T) {
	t.Parallel()

	q := mesh.NewForwardQueue(0, mesh.DefaultSeenCacheMaxAgeMs)
	p := discoveryPacket(1, 5, 1)
	q.Enqueue(&p, 0)
	q.Clear()

	if q.Len() != 0 || q.SeenCount() != 0 {
		t.Fatalf("Clear left Len()=%d SeenCount()=%d, want 0,0", q.Len(), q.SeenCount())
	}
	if q.Stats().Enqueued != 1 {
		t.Fatal("Clear must not reset cumulative stats")
	}
}
