package rt

import (
	"sync"
	"testing"
)

func TestQueueValidation(t *testing.T) {
	if _, err := NewQueue[int](0); err == nil {
		t.Fatal("NewQueue(0) expected error")
	}
}

func TestQueueCapacityRoundsUp(t *testing.T) {
	q, err := NewQueue[int](5)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	if q.Cap() != 8 {
		t.Fatalf("Cap() = %d, want 8", q.Cap())
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q, err := NewQueue[int](4)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	for i := 1; i <= 4; i++ {
		if !q.TryPush(i) {
			t.Fatalf("TryPush(%d) failed on non-full queue", i)
		}
	}

	if q.TryPush(5) {
		t.Fatal("TryPush succeeded on full queue")
	}

	for i := 1; i <= 4; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop() = %d, %v; want %d, true", v, ok, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop succeeded on empty queue")
	}
}

func TestQueueWrapsPastCapacity(t *testing.T) {
	q, err := NewQueue[int](2)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	for i := 0; i < 100; i++ {
		if !q.TryPush(i) {
			t.Fatalf("TryPush(%d) failed", i)
		}

		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop() = %d, %v; want %d, true", v, ok, i)
		}
	}
}

func TestQueueSingleProducerSingleConsumer(t *testing.T) {
	const count = 10000

	q, err := NewQueue[int](64)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; {
			if q.TryPush(i) {
				i++
			}
		}
	}()

	var got []int
	go func() {
		defer wg.Done()
		for len(got) < count {
			if v, ok := q.TryPop(); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("element %d = %d, want %d", i, v, i)
		}
	}
}
