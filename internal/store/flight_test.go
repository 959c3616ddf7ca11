package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFlightSharesResultAcrossWaiters(t *testing.T) {
	fl := newFlight()
	want := errors.New("shared outcome")

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fl.wait(context.Background())
		}(i)
	}

	fl.resolve(want)
	wg.Wait()

	for i, err := range results {
		if !errors.Is(err, want) {
			t.Errorf("waiter %d: expected shared error, got %v", i, err)
		}
	}
}

func TestFlightWaitAfterResolve(t *testing.T) {
	fl := newFlight()
	fl.resolve(nil)

	if err := fl.wait(context.Background()); err != nil {
		t.Errorf("late joiner should see the resolved result, got %v", err)
	}
}

func TestFlightRespectsContext(t *testing.T) {
	fl := newFlight()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := fl.wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
