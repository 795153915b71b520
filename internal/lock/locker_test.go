package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "slot:1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Fatalf("expected at most one holder, saw %d", got)
	}
	if l.Len() != 0 {
		t.Fatalf("expected entries to be dropped, have %d", l.Len())
	}
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)

	unlockA, err := l.Lock(context.Background(), "slot:1")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	unlockB, err := l.Lock(context.Background(), "slot:2")
	if err != nil {
		t.Fatalf("expected slot:2 to be free while slot:1 is held: %v", err)
	}
	unlockB()
}

func TestLocal_WaitBound(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(context.Background(), "k"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(0)

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocal_DoubleUnlockIsIgnored(t *testing.T) {
	l := NewLocal(time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
	unlock()

	unlock2, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}
