package store

import "context"

// flight is a single-flight future: the first caller performs the work and
// resolves it, late joiners block on the shared result. It replaces the ad
// hoc "remember the in-progress promise" guard with an explicit primitive.
type flight struct {
	done chan struct{}
	err  error
}

func newFlight() *flight {
	return &flight{done: make(chan struct{})}
}

// resolve publishes the result and wakes every waiter. Must be called
// exactly once.
func (f *flight) resolve(err error) {
	f.err = err
	close(f.done)
}

// wait blocks until the flight resolves or the caller's context expires.
func (f *flight) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
