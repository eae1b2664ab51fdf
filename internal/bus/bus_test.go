package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/typester/riverql/internal/river"
)

func mode(n int) river.Event {
	return river.SeatMode{Name: string(rune('a' + n%26))}
}

func TestNew_DefaultCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
	if got := New(8).Capacity(); got != 8 {
		t.Errorf("Capacity() = %d, want 8", got)
	}
}

func TestCursor_DeliversInOrder(t *testing.T) {
	b := New(16)
	c := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(mode(i))
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ev, err := c.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev != mode(i) {
			t.Errorf("Next() = %v, want %v", ev, mode(i))
		}
	}
}

func TestCursor_StartsAtNextEvent(t *testing.T) {
	b := New(16)
	b.Publish(mode(0))

	c := b.Subscribe()
	b.Publish(mode(1))

	ev, err := c.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev != mode(1) {
		t.Errorf("Next() = %v, want event published after subscribe", ev)
	}
}

func TestCursor_WaitsForPublish(t *testing.T) {
	b := New(4)
	c := b.Subscribe()

	got := make(chan river.Event, 1)
	go func() {
		ev, err := c.Next(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(mode(3))

	select {
	case ev := <-got:
		if ev != mode(3) {
			t.Errorf("Next() = %v, want %v", ev, mode(3))
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not wake up after publish")
	}
}

func TestCursor_Lag(t *testing.T) {
	b := New(4)
	c := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(mode(i))
	}

	_, err := c.Next(context.Background())
	var lag *LagError
	if !errors.As(err, &lag) {
		t.Fatalf("Next() error = %v, want *LagError", err)
	}
	if lag.Missed != 6 {
		t.Errorf("Missed = %d, want 6", lag.Missed)
	}
	if !errors.Is(err, ErrLagged) {
		t.Error("errors.Is(err, ErrLagged) = false, want true")
	}

	// resumes at the oldest retained event
	for i := 6; i < 10; i++ {
		ev, err := c.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev != mode(i) {
			t.Errorf("Next() = %v, want %v", ev, mode(i))
		}
	}
}

func TestBus_SlowSubscriberIsolated(t *testing.T) {
	b := New(4)
	slow := b.Subscribe()
	fast := b.Subscribe()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		b.Publish(mode(i))
		ev, err := fast.Next(ctx)
		if err != nil {
			t.Fatalf("fast Next() error = %v", err)
		}
		if ev != mode(i) {
			t.Fatalf("fast Next() = %v, want %v", ev, mode(i))
		}
	}

	if _, err := slow.Next(ctx); !errors.Is(err, ErrLagged) {
		t.Errorf("slow Next() error = %v, want ErrLagged", err)
	}
}

func TestBus_PublishDoesNotBlock(t *testing.T) {
	b := New(2)
	_ = b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(mode(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish() blocked on an idle subscriber")
	}
	if got := b.Published(); got != 10000 {
		t.Errorf("Published() = %d, want 10000", got)
	}
}

func TestBus_CloseDrainsThenErrClosed(t *testing.T) {
	b := New(8)
	c := b.Subscribe()
	b.Publish(mode(0))
	b.Publish(mode(1))
	b.Close()
	b.Close()
	b.Publish(mode(2)) // ignored

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Next(ctx); err != nil {
			t.Fatalf("Next() error = %v, want retained event", err)
		}
	}
	if _, err := c.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() error = %v, want ErrClosed", err)
	}
	if _, err := c.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("second Next() error = %v, want ErrClosed", err)
	}
	if !b.Closed() {
		t.Error("Closed() = false, want true")
	}
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := New(8)
	b.Publish(mode(0))
	b.Close()

	c := b.Subscribe()
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() error = %v, want ErrClosed", err)
	}
}

func TestBus_CloseWakesWaiters(t *testing.T) {
	b := New(8)
	const n = 5

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		c := b.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Next(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	b.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Next() error = %v, want ErrClosed", err)
		}
	}
}

func TestCursor_ContextCancel(t *testing.T) {
	b := New(8)
	c := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Next() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not return after cancellation")
	}
}
