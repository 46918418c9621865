package router

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFO(t *testing.T) {
	b := NewGrowableBuffer[int](4)

	for i := 1; i <= 3; i++ {
		if !b.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}

	for i := 1; i <= 3; i++ {
		got, ok := b.Receive()
		if !ok {
			t.Fatalf("Receive %d returned closed", i)
		}
		if got != i {
			t.Errorf("Receive = %d, want %d", got, i)
		}
	}
}

func TestGrowableBuffer_GrowsWhenFull(t *testing.T) {
	b := NewGrowableBuffer[int](2)

	const n = 100
	for i := 0; i < n; i++ {
		if !b.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := b.Stats()
	if stats.Depth != n {
		t.Errorf("Depth = %d, want %d", stats.Depth, n)
	}
	if stats.Resizes == 0 {
		t.Error("expected at least one resize")
	}

	// Order survives resizes.
	for i := 0; i < n; i++ {
		got, _ := b.Receive()
		if got != i {
			t.Fatalf("Receive = %d, want %d", got, i)
		}
	}
}

func TestGrowableBuffer_WrapAroundThenGrow(t *testing.T) {
	b := NewGrowableBuffer[int](4)

	// Advance head so the ring wraps before it grows.
	for i := 0; i < 3; i++ {
		b.Send(i)
	}
	b.Receive()
	b.Receive()
	for i := 3; i < 10; i++ {
		b.Send(i)
	}

	for want := 2; want < 10; want++ {
		got, ok := b.Receive()
		if !ok || got != want {
			t.Fatalf("Receive = %d (%v), want %d", got, ok, want)
		}
	}
}

func TestGrowableBuffer_BlockingReceive(t *testing.T) {
	b := NewGrowableBuffer[string](2)

	got := make(chan string, 1)
	go func() {
		v, _ := b.Receive()
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	b.Send("hello")

	select {
	case v := <-got:
		if v != "hello" {
			t.Errorf("Receive = %q, want hello", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake after Send")
	}
}

func TestGrowableBuffer_TryReceive(t *testing.T) {
	b := NewGrowableBuffer[int](2)

	if _, ok := b.TryReceive(); ok {
		t.Error("TryReceive on empty buffer should return false")
	}

	b.Send(7)
	got, ok := b.TryReceive()
	if !ok || got != 7 {
		t.Errorf("TryReceive = %d (%v), want 7", got, ok)
	}
}

func TestGrowableBuffer_CloseDrainsRemaining(t *testing.T) {
	b := NewGrowableBuffer[int](4)
	b.Send(1)
	b.Send(2)
	b.Close()

	if b.Send(3) {
		t.Error("Send after Close should return false")
	}

	// Buffered items remain receivable after close.
	for want := 1; want <= 2; want++ {
		got, ok := b.Receive()
		if !ok || got != want {
			t.Fatalf("Receive = %d (%v), want %d", got, ok, want)
		}
	}

	if _, ok := b.Receive(); ok {
		t.Error("Receive on closed drained buffer should return false")
	}

	// Idempotent.
	b.Close()
}

func TestGrowableBuffer_CloseWakesBlockedReceivers(t *testing.T) {
	b := NewGrowableBuffer[int](2)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Receive()
		}()
	}

	time.Sleep(20 * time.Millisecond)
	b.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked receivers not released by Close")
	}
}

func TestGrowableBuffer_ConcurrentProducers(t *testing.T) {
	b := NewGrowableBuffer[int](2)

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Send(i)
			}
		}()
	}
	wg.Wait()

	stats := b.Stats()
	if stats.Pushed != producers*perProducer {
		t.Errorf("Pushed = %d, want %d", stats.Pushed, producers*perProducer)
	}
	if b.Len() != producers*perProducer {
		t.Errorf("Len = %d, want %d", b.Len(), producers*perProducer)
	}
}
