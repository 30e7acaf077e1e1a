// Package cancel provides the process-wide cooperative cancellation flag.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a write-once cancellation flag. It is set by the controller in
// response to an external signal and polled by every component at each chunk,
// pass and stage boundary. Once set it is never cleared.
type Token struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel requests cancellation. Calls after the first are no-ops.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.set.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether cancellation was requested. A nil token is never
// cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.set.Load()
}

// Done returns a channel closed on cancellation.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Bind cancels the token when ctx is done and returns a stop function that
// detaches the watcher.
func (t *Token) Bind(ctx context.Context) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-quit:
			default:
				t.Cancel()
			}
		case <-t.done:
		case <-quit:
		}
	}()
	return func() { once.Do(func() { close(quit) }) }
}
