package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("sweep", "*/15 * * * *", func(context.Context) {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("descriptor", "@every 1m", func(context.Context) {}); err != nil {
		t.Errorf("Expected descriptor to be accepted, got %v", err)
	}
	if err := s.AddJob("bad", "not a schedule", func(context.Context) {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestSchedulerRunsAndStops(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	var once sync.Once

	if err := s.AddJob("tick", "@every 1s", func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
		<-ctx.Done()
		once.Do(func() { close(cancelled) })
	}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.Start()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	s.Stop()
	select {
	case <-cancelled:
	default:
		t.Error("Stop must cancel and wait for the running job")
	}
}
