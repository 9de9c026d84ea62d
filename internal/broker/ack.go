package broker

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// ackTracker keeps the commit position of each partition from passing an
// unhandled message. Group commits are cumulative per partition, so
// committing a later offset would silently consume every earlier one; the
// tracker therefore only releases the newest message that closes a
// contiguous run of handled offsets from the current position.
type ackTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionAcks
}

type partitionAcks struct {
	// next is the lowest fetched offset not yet handled; the commit
	// position may not move past it
	next    int64
	handled map[int64]kafka.Message
}

func newAckTracker() *ackTracker {
	return &ackTracker{parts: make(map[int]*partitionAcks)}
}

// expect records a fetched message before it is handed downstream. Fetches
// arrive in offset order per partition; a lower offset after a reader
// rebuild rewinds the window to the redelivered position.
func (t *ackTracker) expect(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[msg.Partition]
	if !ok {
		t.parts[msg.Partition] = &partitionAcks{
			next:    msg.Offset,
			handled: make(map[int64]kafka.Message),
		}
		return
	}
	if msg.Offset < p.next {
		p.next = msg.Offset
	}
}

// done marks one message handled. It returns the newest message that closes
// a contiguous run from the commit position, and whether the position moved
// at all; a handled message behind an unhandled one moves nothing.
func (t *ackTracker) done(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[msg.Partition]
	if !ok || msg.Offset < p.next {
		// never fetched on this session, or already committed past
		return kafka.Message{}, false
	}
	p.handled[msg.Offset] = msg

	var last kafka.Message
	moved := false
	for {
		m, ok := p.handled[p.next]
		if !ok {
			break
		}
		delete(p.handled, p.next)
		p.next++
		last = m
		moved = true
	}
	return last, moved
}
