package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serialises turns per session. Slots are reference counted and
// dropped once nobody holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	token chan struct{}
	refs  int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{slots: make(map[uuid.UUID]*lockSlot)}
}

// Lock blocks until the session is free or ctx is done.
func (l *sessionLocks) Lock(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	slot, ok := l.slots[id]
	if !ok {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.release(id, slot)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *sessionLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[id]
	if !ok {
		return
	}
	<-slot.token
	l.release(id, slot)
}

func (l *sessionLocks) release(id uuid.UUID, slot *lockSlot) {
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
