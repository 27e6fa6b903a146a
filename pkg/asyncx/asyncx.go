package asyncx

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError carries a recovered panic value and the stack at the panic site.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover converts a recovered panic into a *PanicError. Call it as
// defer asyncx.Recover(&err).
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r, Stack: debug.Stack()}
	}
}

// Tracker runs goroutines and waits for them. The zero value is ready to use.
type Tracker struct {
	// OnPanic receives panics recovered from tracked goroutines. Nil drops them.
	OnPanic func(*PanicError)

	wg     sync.WaitGroup
	mu     sync.Mutex
	active int
}

// Go runs fn in a new tracked goroutine.
func (t *Tracker) Go(fn func()) {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()
	t.wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil && t.OnPanic != nil {
				t.OnPanic(&PanicError{Value: r, Stack: debug.Stack()})
			}
			t.mu.Lock()
			t.active--
			t.mu.Unlock()
			t.wg.Done()
		}()
		fn()
	}()
}

// Active returns the number of tracked goroutines still running.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Wait blocks until all tracked goroutines return or ctx is done, in which
// case ctx.Err() is returned and the goroutines keep running.
func (t *Tracker) Wait(ctx context.Context) error {
	return WaitContext(ctx, t.wg.Wait)
}

// WaitContext runs wait in a goroutine and returns when it finishes or when
// ctx is done.
func WaitContext(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
