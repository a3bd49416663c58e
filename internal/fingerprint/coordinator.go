package fingerprint

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coordinator enforces at-most-once analysis per fingerprint. In-process
// concurrent requests for the same fingerprint collapse onto one call via
// singleflight.Group (grounded on the teacher's use of the same package in
// internal/modelrunner's model-load coordination); cross-process / across
// time, a completed fingerprint is recorded in the CompletionStore with a
// TTL so a later request for the same content within the window is
// answered without re-running analysis at all.
type Coordinator struct {
	store   CompletionStore
	group   singleflight.Group
	running sync.Map // fingerprint -> struct{}, for Status introspection only
	ttlSec  int
}

// NewCoordinator builds a Coordinator whose completion records expire after
// ttlSeconds.
func NewCoordinator(store CompletionStore, ttlSeconds int) *Coordinator {
	if ttlSeconds <= 0 {
		ttlSeconds = 86400
	}
	return &Coordinator{store: store, ttlSec: ttlSeconds}
}

// Status reports the fingerprint's current position in the state machine.
// It does not guarantee linearizability with concurrent Run calls; it is
// for observability, not control flow.
func (c *Coordinator) Status(ctx context.Context, key string) (Status, error) {
	if _, ok := c.running.Load(key); ok {
		return StatusRunning, nil
	}
	val, err := c.store.Get(ctx, key)
	if err != nil {
		return StatusAbsent, err
	}
	if val != "" {
		return StatusSucceeded, nil
	}
	return StatusAbsent, nil
}

// Run executes fn at most once per fingerprint within the completion TTL.
// If the fingerprint already has a recorded completion, fn is skipped and
// the recorded value is returned with StatusSucceeded. Otherwise fn runs
// (collapsed with any other in-flight call for the same key), and on
// success the result is persisted; on failure the fingerprint reverts to
// Absent so a subsequent call retries fn.
func (c *Coordinator) Run(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (Status, string, error) {
	if val, err := c.store.Get(ctx, key); err == nil && val != "" {
		return StatusSucceeded, val, nil
	}

	c.running.Store(key, struct{}{})
	defer c.running.Delete(key)

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, ferr := fn(ctx)
		if ferr != nil {
			return "", ferr
		}
		if serr := c.store.Set(ctx, key, result, c.ttlSec); serr != nil {
			return "", serr
		}
		return result, nil
	})
	if err != nil {
		return StatusFailed, "", err
	}
	return StatusSucceeded, v.(string), nil
}
