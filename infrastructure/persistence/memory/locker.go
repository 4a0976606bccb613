package memory

import (
	"context"
	"sync"

	"conceptgraph/domain/core/valueobjects"
)

// ScopeLocker serializes writers per scope inside one process
type ScopeLocker struct {
	mu    sync.Mutex
	slots map[valueobjects.ScopeID]chan struct{}
}

// NewScopeLocker creates a locker
func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{slots: make(map[valueobjects.ScopeID]chan struct{})}
}

func (l *ScopeLocker) slot(scope valueobjects.ScopeID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[scope]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[scope] = ch
	}
	return ch
}

// Lock blocks until the scope is free or ctx ends
func (l *ScopeLocker) Lock(ctx context.Context, scope valueobjects.ScopeID) (func(context.Context) error, error) {
	ch := l.slot(scope)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
