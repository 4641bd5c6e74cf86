package catalog

import (
	"context"
	"sync"
)

// Bus fans committed mutation events out to listeners, in subscription
// order, on the writer's goroutine.
type Bus struct {
	mu        sync.RWMutex
	listeners []MutationListener
}

func (b *Bus) Subscribe(l MutationListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

func (b *Bus) Emit(ctx context.Context, ev MutationEvent) {
	b.mu.RLock()
	ls := make([]MutationListener, len(b.listeners))
	copy(ls, b.listeners)
	b.mu.RUnlock()

	for _, l := range ls {
		l.OnMutation(ctx, ev)
	}
}
