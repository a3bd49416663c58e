package analysisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"innerlog/internal/apperr"
	"innerlog/internal/fingerprint"
	"innerlog/internal/observability"
)

// Producer abstracts the Kafka writer behavior the dispatcher needs,
// mirroring the teacher's orchestrator.Producer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher submits analysis jobs onto a durable topic and, once Run is
// started, drains them with a bounded worker pool. Submission never
// blocks: once the bounded in-flight count is reached, Submit returns
// apperr.ErrOverloaded (spec.md §5, §7) rather than queueing further.
//
// Admission (inFlight, producer-side: bounds concurrent Submit callers) and
// draining (processing, consumer-side: bounds concurrent handle() calls)
// are deliberately independent slot pools. They are not the same job's
// lifecycle end-to-end — Submit publishes to a durable topic and returns
// long before any worker (possibly in a different process) consumes that
// message, so a consumer can never assume a producer-side slot was taken
// for the message it just fetched. Coupling the two (consume path
// releasing a slot it never acquired) deadlocks the consumer after
// exactly cap(inFlight) messages once nothing else fills that channel.
type Dispatcher struct {
	topic       string
	producer    Producer
	coordinator *fingerprint.Coordinator
	process     Processor
	inFlight    chan struct{}
	processing  chan struct{}
	maxRetries  int
}

// NewDispatcher constructs a Dispatcher. maxInFlight bounds both the number
// of concurrent Submit callers and the number of concurrently-handled
// consumed messages (two separate pools of that capacity); maxRetries is
// the total number of attempts, the first one included, for a job whose
// Processor returns a retryable error.
func NewDispatcher(topic string, producer Producer, coordinator *fingerprint.Coordinator, process Processor, maxInFlight, maxRetries int) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 256
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Dispatcher{
		topic:       topic,
		producer:    producer,
		coordinator: coordinator,
		process:     process,
		inFlight:    make(chan struct{}, maxInFlight),
		processing:  make(chan struct{}, maxInFlight),
		maxRetries:  maxRetries,
	}
}

// Submit publishes a job for async processing. It acquires an in-flight
// slot synchronously so the caller learns about overload immediately,
// rather than discovering it only once a downstream worker blocks.
func (d *Dispatcher) Submit(ctx context.Context, job AnalysisJob) error {
	select {
	case d.inFlight <- struct{}{}:
	default:
		return apperr.ErrOverloaded
	}
	payload, err := json.Marshal(job)
	if err != nil {
		<-d.inFlight
		return fmt.Errorf("%w: marshal analysis job: %v", apperr.ErrInputInvalid, err)
	}
	if err := d.producer.WriteMessages(ctx, kafka.Message{Topic: d.topic, Key: []byte(job.JobID), Value: payload}); err != nil {
		<-d.inFlight
		return fmt.Errorf("%w: publish analysis job: %v", apperr.ErrStoreFault, err)
	}
	return nil
}

// release frees an in-flight slot after Submit fails to publish. A
// successful Submit's slot is intentionally held: this bounds the number
// of concurrently outstanding Submit callers, independent of how long the
// published message takes to eventually drain on the consumer side.
func (d *Dispatcher) release() { <-d.inFlight }

// handle runs one consumed message to a terminal state: parse, dedupe via
// the fingerprint coordinator, process with retry, and DLQ on failure. It
// acquires its own processing slot — never the producer-side admission
// slot a Submit caller may or may not have taken for this message.
func (d *Dispatcher) handle(ctx context.Context, msg kafka.Message, dlq Producer) {
	select {
	case d.processing <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.processing }()
	log := observability.LoggerWithTrace(ctx)

	var job AnalysisJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		log.Warn().Err(err).Msg("malformed_analysis_job")
		return
	}

	fp := fingerprint.Compute(job.UserID, job.TargetID, job.Text, job.AnalysisVersion)
	_, _, err := d.coordinator.Run(ctx, fp, func(ctx context.Context) (string, error) {
		return "done", d.processWithRetry(ctx, job)
	})
	if err != nil {
		d.publishDLQ(ctx, dlq, job, err)
	}
}

// processWithRetry retries a job on ModelFault/StoreFault (transient,
// infra-shaped failures) with exponential backoff, the same escalation the
// teacher's StartKafkaConsumer applies per command message. Any other
// error is permanent and surfaces immediately.
func (d *Dispatcher) processWithRetry(ctx context.Context, job AnalysisJob) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err := d.process(ctx, job)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, apperr.ErrModelFault) && !errors.Is(err, apperr.ErrStoreFault) {
			return err
		}
		if attempt == d.maxRetries || ctx.Err() != nil {
			break
		}
		backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (d *Dispatcher) publishDLQ(ctx context.Context, dlq Producer, job AnalysisJob, cause error) {
	log := observability.LoggerWithTrace(ctx)
	result := AnalysisResult{JobID: job.JobID, Status: "failed", Error: cause.Error()}
	payload, _ := json.Marshal(result)
	if err := dlq.WriteMessages(ctx, kafka.Message{Topic: d.topic + ".dlq", Key: []byte(job.JobID), Value: payload}); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("publish_analysis_dlq_failed")
	}
}
