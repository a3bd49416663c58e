package analysisqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"innerlog/internal/observability"
)

// Run drains the job topic with a bounded worker pool until ctx is
// canceled, adapted from the teacher's orchestrator.StartKafkaConsumer:
// a single fetch loop feeds a bounded channel, workerCount goroutines each
// process one message to a terminal state, and the offset is committed
// only after that terminal state is reached.
func (d *Dispatcher) Run(ctx context.Context, reader *kafka.Reader, dlq Producer, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 4
	}
	log := observability.LoggerWithTrace(ctx)
	jobs := make(chan kafka.Message, workerCount*4)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for msg := range jobs {
				d.handle(ctx, msg, dlq)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Warn().Err(err).Msg("commit_analysis_job_failed")
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Warn().Err(err).Msg("fetch_analysis_job_failed")
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return
				}
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}
