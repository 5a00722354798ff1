package supervisor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

func TestSupervisorPropagatesFailureAndCancelsOthers(t *testing.T) {
	s := New(time.Second, log.New(io.Discard, "", 0))

	otherCancelled := make(chan struct{})
	wantErr := errors.New("boom")

	s.Add("failing", func(ctx context.Context) error {
		return wantErr
	})
	s.Add("other", func(ctx context.Context) error {
		<-ctx.Done()
		close(otherCancelled)
		return ctx.Err()
	})

	err := s.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	select {
	case <-otherCancelled:
	case <-time.After(time.Second):
		t.Fatal("expected the other task's context to be cancelled")
	}
}

func TestSupervisorReturnsNilOnParentCancellation(t *testing.T) {
	s := New(time.Second, log.New(io.Discard, "", 0))
	s.Add("task", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on graceful parent cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("supervisor did not return after parent cancellation")
	}
}
