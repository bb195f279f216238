package workerpool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(Config{NumWorkers: 2, QueueSize: 4})
	defer p.Shutdown()

	done := make(chan int, 1)
	if !p.SubmitFunc(func(workerID int) error {
		done <- workerID
		return nil
	}) {
		t.Fatal("expected Submit to accept the task")
	}

	select {
	case id := <-done:
		if id < 0 || id >= 2 {
			t.Fatalf("worker id %d out of range", id)
		}
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
}

func TestShutdownAndDrainCompletesQueuedWork(t *testing.T) {
	p := New(Config{NumWorkers: 1, QueueSize: 8})

	var completed atomic.Int64
	for i := 0; i < 5; i++ {
		p.SubmitFunc(func(workerID int) error {
			completed.Add(1)
			return nil
		})
	}

	p.ShutdownAndDrain()

	if got := completed.Load(); got != 5 {
		t.Fatalf("expected all 5 queued tasks to complete, got %d", got)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(Config{NumWorkers: 1, QueueSize: 1})
	p.Shutdown()

	if p.SubmitFunc(func(int) error { return nil }) {
		t.Fatal("expected Submit to fail after shutdown")
	}
}
