// Package modelrunner hosts a fixed set of named inference models and
// exposes them as uniform, cancellable, memory-safe calls (spec §4.2),
// grounded on the teacher's lazy-construction style in embedder.NewClient
// and the rate-limited HTTP embedding client in internal/embedding/client.go.
package modelrunner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"innerlog/internal/apperr"
	"innerlog/internal/config"
	"innerlog/internal/observability"
)

type modelState struct {
	cfg       config.ModelConfig
	provider  Provider
	sem       chan struct{}
	degraded  bool
	degradeMu sync.RWMutex
}

// Registry is the process-global set of named models. The first call to a
// cold model acquires a per-model load lock via singleflight; concurrent
// callers wait and reuse the loaded instance.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]*modelState
	loadOnce singleflight.Group
	builders map[string]func(config.ModelConfig) (Provider, error)
}

// NewRegistry constructs an empty registry. Register builders before calling
// Warm/Infer for a given provider kind ("anthropic", "openai", "google").
func NewRegistry() *Registry {
	return &Registry{
		models:   make(map[string]*modelState),
		builders: make(map[string]func(config.ModelConfig) (Provider, error)),
	}
}

// RegisterBuilder wires a provider-kind constructor into the registry.
func (r *Registry) RegisterBuilder(kind string, build func(config.ModelConfig) (Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = build
}

// LoadFromConfig populates the registry's declared model set from the
// static model-registry config, without eagerly constructing providers
// (lazy load happens on first Warm/Infer, per spec §4.2).
func (r *Registry) LoadFromConfig(models []config.ModelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		sem := make(chan struct{}, m.MaxConcurrency)
		r.models[m.Name] = &modelState{cfg: m, sem: sem}
	}
}

// Warm ensures the named model is loaded, blocking concurrent callers on
// the same singleflight key until the first caller finishes construction.
func (r *Registry) Warm(ctx context.Context, name string) error {
	_, err := r.loadOnce.Do(name, func() (any, error) {
		r.mu.RLock()
		st, ok := r.models[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: unknown model %q", apperr.ErrInputInvalid, name)
		}
		r.mu.Lock()
		alreadyLoaded := st.provider != nil
		r.mu.Unlock()
		if alreadyLoaded {
			return nil, nil
		}
		build, ok := r.builders[st.cfg.Provider]
		if !ok {
			return nil, fmt.Errorf("%w: no builder registered for provider kind %q", apperr.ErrInputInvalid, st.cfg.Provider)
		}
		p, err := build(st.cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: load model %q: %v", apperr.ErrModelFault, name, err)
		}
		r.mu.Lock()
		st.provider = p
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// Evict releases the loaded provider instance; subsequent calls reload
// lazily via Warm.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.models[name]; ok {
		st.provider = nil
	}
}

func (r *Registry) state(name string) (*modelState, error) {
	r.mu.RLock()
	st, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", apperr.ErrInputInvalid, name)
	}
	return st, nil
}

func (r *Registry) markDegraded(st *modelState, degraded bool) {
	st.degradeMu.Lock()
	st.degraded = degraded
	st.degradeMu.Unlock()
}

// Degraded reports whether the named model's last call failed in a way
// consistent with a device/provider fault (as opposed to a caller input
// error), generalized from the teacher's rate-limited embedding client
// into a circuit-style flag other callers can branch on.
func (r *Registry) Degraded(name string) bool {
	st, err := r.state(name)
	if err != nil {
		return false
	}
	st.degradeMu.RLock()
	defer st.degradeMu.RUnlock()
	return st.degraded
}

// acquire blocks (deadline-aware) until a semaphore slot for the model is
// free, so at most max_concurrency calls run concurrently per model.
func (st *modelState) acquire(ctx context.Context) error {
	select {
	case st.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for model slot: %v", apperr.ErrCancelled, ctx.Err())
	}
}

func (st *modelState) release() { <-st.sem }

// Infer runs a generate call against the named model, truncating the input
// to the model's declared token budget before invocation per spec §4.2 —
// over-budget inputs never reach the model.
func (r *Registry) Infer(ctx context.Context, name string, input string) (Result, error) {
	st, err := r.state(name)
	if err != nil {
		return Result{}, err
	}
	if err := r.Warm(ctx, name); err != nil {
		return Result{}, err
	}
	if err := st.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer st.release()

	log := observability.LoggerWithTrace(ctx)
	guarded, err := r.guardLength(ctx, st, input)
	if err != nil {
		return Result{}, err
	}

	res, err := st.provider.Generate(ctx, st.cfg.Model, guarded)
	if err != nil {
		r.markDegraded(st, true)
		log.Warn().Err(err).Str("model", name).Msg("model inference failed, marking degraded")
		go r.recover(name)
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrModelFault, err)
	}
	r.markDegraded(st, false)
	return res, nil
}

// Embed runs an embed call against the named model under the same
// concurrency and length-guard rules as Infer.
func (r *Registry) Embed(ctx context.Context, name string, input string) (Result, error) {
	st, err := r.state(name)
	if err != nil {
		return Result{}, err
	}
	if err := r.Warm(ctx, name); err != nil {
		return Result{}, err
	}
	if err := st.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer st.release()

	guarded, err := r.guardLength(ctx, st, input)
	if err != nil {
		return Result{}, err
	}
	res, err := st.provider.Embed(ctx, st.cfg.Model, guarded)
	if err != nil {
		r.markDegraded(st, true)
		go r.recover(name)
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrModelFault, err)
	}
	r.markDegraded(st, false)
	return res, nil
}

// guardLength truncates input so its tokenized length never exceeds the
// model's declared maximum (spec §4.2's input-length guard).
func (r *Registry) guardLength(ctx context.Context, st *modelState, input string) (string, error) {
	var counter TokenCounter = heuristicCounter{}
	if tk := st.provider.Tokenizer(st.cfg.Model); tk != nil {
		counter = tk
	}
	n, err := counter.CountTokens(ctx, input)
	if err != nil {
		return input, fmt.Errorf("%w: count tokens: %v", apperr.ErrModelFault, err)
	}
	if n <= st.cfg.MaxInputTokens || st.cfg.MaxInputTokens <= 0 {
		return input, nil
	}
	// Binary-search-free approximate truncation: shrink proportionally to
	// the ratio of budget to measured length, re-measure, and repeat until
	// the count fits (or one byte is left).
	for n > st.cfg.MaxInputTokens && len(input) > 1 {
		ratio := float64(st.cfg.MaxInputTokens) / float64(n)
		cut := int(float64(len(input)) * ratio)
		if cut < 1 {
			cut = 1
		}
		if cut >= len(input) {
			cut = len(input) - 1
		}
		input = input[:cut]
		if n, err = counter.CountTokens(ctx, input); err != nil {
			return input, fmt.Errorf("%w: count tokens: %v", apperr.ErrModelFault, err)
		}
	}
	return input, nil
}

// recover spawns a background evict+reload after a degraded call, so the
// next Warm rebuilds the provider instance instead of reusing a possibly
// broken connection, the way the teacher's client.CheckReachability-driven
// recovery loop is meant to behave.
func (r *Registry) recover(name string) {
	time.Sleep(2 * time.Second)
	r.Evict(name)
}
