package analysisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"innerlog/internal/apperr"
	"innerlog/internal/fingerprint"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type erroringProducer struct{}

func (erroringProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return errors.New("broker unreachable")
}

type fakeCompletionStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCompletionStore() *fakeCompletionStore {
	return &fakeCompletionStore{data: make(map[string]string)}
}

func (s *fakeCompletionStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *fakeCompletionStore) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func TestSubmit_PublishesJobAndAcquiresSlot(t *testing.T) {
	p := &fakeProducer{}
	coord := fingerprint.NewCoordinator(newFakeCompletionStore(), 60)
	d := NewDispatcher("analysis.jobs", p, coord, func(ctx context.Context, job AnalysisJob) error { return nil }, 2, 1)

	if err := d.Submit(context.Background(), AnalysisJob{JobID: "j1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.count() != 1 {
		t.Fatalf("expected 1 published message, got %d", p.count())
	}
}

func TestSubmit_ReturnsOverloadedWhenBoundedQueueFull(t *testing.T) {
	p := &fakeProducer{}
	coord := fingerprint.NewCoordinator(newFakeCompletionStore(), 60)
	d := NewDispatcher("analysis.jobs", p, coord, func(ctx context.Context, job AnalysisJob) error { return nil }, 1, 1)

	if err := d.Submit(context.Background(), AnalysisJob{JobID: "j1"}); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	err := d.Submit(context.Background(), AnalysisJob{JobID: "j2"})
	if !errors.Is(err, apperr.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
}

func TestSubmit_PublishFailureReleasesSlotAndWrapsStoreFault(t *testing.T) {
	coord := fingerprint.NewCoordinator(newFakeCompletionStore(), 60)
	d := NewDispatcher("analysis.jobs", erroringProducer{}, coord, func(ctx context.Context, job AnalysisJob) error { return nil }, 1, 1)

	err := d.Submit(context.Background(), AnalysisJob{JobID: "j1"})
	if !errors.Is(err, apperr.ErrStoreFault) {
		t.Fatalf("expected ErrStoreFault, got %v", err)
	}
	// Slot should have been released on failure; a second submit must succeed.
	d2 := d
	if err := d2.Submit(context.Background(), AnalysisJob{JobID: "j2"}); err != nil && !errors.Is(err, apperr.ErrStoreFault) {
		t.Fatalf("unexpected error on retry submit: %v", err)
	}
}

func TestProcessWithRetry_RetriesModelFaultThenSucceeds(t *testing.T) {
	var calls int
	process := func(ctx context.Context, job AnalysisJob) error {
		calls++
		if calls < 2 {
			return apperr.ErrModelFault
		}
		return nil
	}
	d := NewDispatcher("t", &fakeProducer{}, fingerprint.NewCoordinator(newFakeCompletionStore(), 60), process, 4, 3)
	if err := d.processWithRetry(context.Background(), AnalysisJob{JobID: "j1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestProcessWithRetry_PermanentErrorDoesNotRetry(t *testing.T) {
	var calls int
	process := func(ctx context.Context, job AnalysisJob) error {
		calls++
		return apperr.ErrInputInvalid
	}
	d := NewDispatcher("t", &fakeProducer{}, fingerprint.NewCoordinator(newFakeCompletionStore(), 60), process, 4, 3)
	err := d.processWithRetry(context.Background(), AnalysisJob{JobID: "j1"})
	if !errors.Is(err, apperr.ErrInputInvalid) {
		t.Fatalf("expected ErrInputInvalid, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", calls)
	}
}

func TestProcessWithRetry_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	process := func(ctx context.Context, job AnalysisJob) error { return apperr.ErrStoreFault }
	d := NewDispatcher("t", &fakeProducer{}, fingerprint.NewCoordinator(newFakeCompletionStore(), 60), process, 4, 2)
	start := time.Now()
	err := d.processWithRetry(context.Background(), AnalysisJob{JobID: "j1"})
	if !errors.Is(err, apperr.ErrStoreFault) {
		t.Fatalf("expected ErrStoreFault, got %v", err)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Fatal("expected at least one backoff interval to elapse")
	}
}

func TestHandle_DedupesIdenticalFingerprintJobs(t *testing.T) {
	var calls int
	var mu sync.Mutex
	process := func(ctx context.Context, job AnalysisJob) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}
	dlq := &fakeProducer{}
	d := NewDispatcher("t", &fakeProducer{}, fingerprint.NewCoordinator(newFakeCompletionStore(), 60), process, 4, 1)
	job := AnalysisJob{JobID: "j1", UserID: "u1", TargetID: "e1", Text: "hello", AnalysisVersion: "v1"}
	payload, _ := json.Marshal(job)

	d.handle(context.Background(), kafka.Message{Value: payload}, dlq)
	d.handle(context.Background(), kafka.Message{Value: payload}, dlq)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected the second identical job to be deduped, got %d calls", calls)
	}
}

// TestHandle_DoesNotDeadlockPastInFlightCapacity exercises the only
// production wiring (consumer.Run -> handle, Submit never called):
// consuming more messages than maxInFlight must keep draining, since
// handle's processing slot is acquired and released independently of any
// producer-side admission slot.
func TestHandle_DoesNotDeadlockPastInFlightCapacity(t *testing.T) {
	process := func(ctx context.Context, job AnalysisJob) error { return nil }
	dlq := &fakeProducer{}
	d := NewDispatcher("t", &fakeProducer{}, fingerprint.NewCoordinator(newFakeCompletionStore(), 60), process, 1, 1)

	for i := 0; i < 5; i++ {
		job := AnalysisJob{JobID: "j", UserID: "u1", TargetID: "e1", Text: fmt.Sprintf("hello %d", i), AnalysisVersion: "v1"}
		payload, _ := json.Marshal(job)
		done := make(chan struct{})
		go func() {
			d.handle(context.Background(), kafka.Message{Value: payload}, dlq)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("handle deadlocked on message %d (maxInFlight exceeded)", i)
		}
	}
}
