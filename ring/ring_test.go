package ring

import (
	"testing"

	"github.com/GriffinCanCode/retrigger/event"
)

func TestPushPopOrder(t *testing.T) {
	r := New(4)
	for i := 0; i < 4; i++ {
		if !r.Push(event.Event{Path: string(rune('a' + i))}) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	if r.Push(event.Event{Path: "overflow"}) {
		t.Fatal("push into full ring should fail")
	}
	for i := 0; i < 4; i++ {
		e, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d should have succeeded", i)
		}
		if want := string(rune('a' + i)); e.Path != want {
			t.Fatalf("pop %d = %q, want %q", i, e.Path, want)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop from empty ring should fail")
	}
}

func TestCapacityPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two capacity")
		}
	}()
	New(3)
}

func TestWraparound(t *testing.T) {
	r := New(2)
	for round := 0; round < 1000; round++ {
		if !r.Push(event.Event{TimestampNS: int64(round)}) {
			t.Fatalf("round %d: push 1 failed", round)
		}
		if !r.Push(event.Event{TimestampNS: int64(round) + 1}) {
			t.Fatalf("round %d: push 2 failed", round)
		}
		e, ok := r.Pop()
		if !ok || e.TimestampNS != int64(round) {
			t.Fatalf("round %d: pop 1 = %v, %v", round, e, ok)
		}
		e, ok = r.Pop()
		if !ok || e.TimestampNS != int64(round)+1 {
			t.Fatalf("round %d: pop 2 = %v, %v", round, e, ok)
		}
	}
}

func TestLenCapacity(t *testing.T) {
	r := New(8)
	if r.Capacity() != 8 {
		t.Fatalf("Capacity() = %d, want 8", r.Capacity())
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
	r.Push(event.Event{Path: "x"})
	r.Push(event.Event{Path: "y"})
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	r.Pop()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestConcurrentSPSC(t *testing.T) {
	r := New(1024)
	const n = 200000
	done := make(chan struct{})

	go func() {
		defer close(done)
		next := 0
		for next < n {
			e, ok := r.Pop()
			if !ok {
				continue
			}
			if e.TimestampNS != int64(next) {
				t.Errorf("out of order: got %d want %d", e.TimestampNS, next)
				return
			}
			next++
		}
	}()

	for i := 0; i < n; i++ {
		for !r.Push(event.Event{TimestampNS: int64(i)}) {
		}
	}
	<-done
}
