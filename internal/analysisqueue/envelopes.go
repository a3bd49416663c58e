// Package analysisqueue dispatches entry/message analysis jobs onto a
// durable Kafka-backed queue and drains them with a bounded worker pool,
// adapted from the teacher's internal/orchestrator/{handler.go,kafka.go}
// command-dispatch system (spec.md §5's "pool of worker tasks consuming
// analysis jobs", "Overloaded once a bounded queue is full"). The
// teacher's generic CommandEnvelope/ResponseEnvelope are renamed to the
// domain-specific AnalysisJob/AnalysisResult, and correlation-ID dedupe via
// DedupeStore is replaced by the Fingerprint Coordinator so a retried or
// duplicated job for identical content collapses exactly the way a direct
// call would (spec §4.4).
package analysisqueue

import (
	"context"
	"time"
)

// AnalysisJob is one unit of deferred analysis work: run the signal
// pipeline (§4.3) over an entry or message's text and persist the result.
type AnalysisJob struct {
	JobID           string    `json:"job_id"`
	UserID          string    `json:"user_id"`
	TargetKind      string    `json:"target_kind"` // "entry" | "message"
	TargetID        string    `json:"target_id"`
	Text            string    `json:"text"`
	AnalysisVersion string    `json:"analysis_version"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// AnalysisResult is published to the DLQ topic when a job exhausts its
// retries; there is no success-path reply topic because a successful job's
// outcome is the persisted Signal itself, not a queue message.
type AnalysisResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"` // "failed"
	Error  string `json:"error,omitempty"`
}

// Processor performs the actual analysis work for one job (signal
// pipeline plus persistence). Errors wrapped in apperr.ErrModelFault or
// apperr.ErrStoreFault are treated as retryable; anything else is
// permanent and sent straight to the DLQ.
type Processor func(ctx context.Context, job AnalysisJob) error
