package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFIFO(t *testing.T) {
	tx, rx := New[int]()
	for i := 0; i < 1000; i++ {
		if err := tx.Send(i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if rx.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", rx.Len())
	}

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		v, err := rx.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v != i {
			t.Fatalf("Recv() = %d, want %d", v, i)
		}
	}
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	type item struct{ producer, seq int }

	const producers, perProducer = 8, 2000
	tx, rx := New[item]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := tx.Send(item{p, i}); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}(p)
	}

	go func() {
		wg.Wait()
		tx.Close()
	}()

	next := make([]int, producers)
	total := 0
	for {
		v, err := rx.Recv(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v.seq != next[v.producer] {
			t.Fatalf("producer %d: got seq %d, want %d", v.producer, v.seq, next[v.producer])
		}
		next[v.producer]++
		total++
	}

	if total != producers*perProducer {
		t.Fatalf("received %d items, want %d", total, producers*perProducer)
	}
}

func TestRecvWaitsForSend(t *testing.T) {
	tx, rx := New[string]()

	got := make(chan string, 1)
	go func() {
		v, err := rx.Recv(context.Background())
		if err != nil {
			t.Errorf("Recv: %v", err)
		}
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("Recv returned %q before any Send", v)
	case <-time.After(50 * time.Millisecond):
	}

	if err := tx.Send("stop"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case v := <-got:
		if v != "stop" {
			t.Fatalf("Recv() = %q, want stop", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up after Send")
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	tx, rx := New[int]()
	_ = tx.Send(1)
	_ = tx.Send(2)
	tx.Close()
	tx.Close()

	if err := tx.Send(3); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}

	ctx := context.Background()
	for _, want := range []int{1, 2} {
		v, err := rx.Recv(ctx)
		if err != nil || v != want {
			t.Fatalf("Recv() = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Recv on drained queue = %v, want ErrClosed", err)
	}
}

func TestSendAfterReceiverClosed(t *testing.T) {
	tx, rx := New[int]()
	_ = tx.Send(1)
	rx.Close()

	for i := 0; i < 3; i++ {
		if err := tx.Send(i); !errors.Is(err, ErrReceiverClosed) {
			t.Fatalf("Send = %v, want ErrReceiverClosed", err)
		}
	}
	if rx.Len() != 0 {
		t.Fatalf("pending items not dropped: Len() = %d", rx.Len())
	}
}

func TestRecvHonoursContext(t *testing.T) {
	_, rx := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := rx.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv = %v, want DeadlineExceeded", err)
	}
}

func TestSendNeverBlocksWithoutConsumer(t *testing.T) {
	tx, rx := New[int]()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200000; i++ {
			_ = tx.Send(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send blocked without a consumer")
	}
	if rx.Len() != 200000 {
		t.Fatalf("Len() = %d", rx.Len())
	}
}
