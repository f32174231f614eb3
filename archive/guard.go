package archive

import "sync"

// Guard admits one operation at a time and tracks Close.
// The zero value is ready to use.
type Guard struct {
	mu     sync.Mutex
	busy   bool
	closed bool
}

// Acquire claims the guard for op. The returned func releases it.
func (g *Guard) Acquire(op string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, NewError(ErrClosed, op, "", nil)
	}
	if g.busy {
		return nil, NewError(ErrOperationInProgress, op, "", nil)
	}
	g.busy = true
	return func() {
		g.mu.Lock()
		g.busy = false
		g.mu.Unlock()
	}, nil
}

// Close marks the guard closed. It returns ErrClosed when already closed.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return NewError(ErrClosed, "close", "", nil)
	}
	g.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (g *Guard) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
