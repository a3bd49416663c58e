package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"innerlog/internal/apperr"
	"innerlog/internal/cache"
	"innerlog/internal/chunker"
	"innerlog/internal/config"
	"innerlog/internal/fingerprint"
	"innerlog/internal/modelrunner"
	"innerlog/internal/signals"
	"innerlog/internal/store"
)

// fakeSessionStore is an in-memory stand-in for store.Store, satisfying
// SessionStore without a live Postgres connection.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]store.ChatSession
	messages map[string][]store.ChatMessage
	entries  map[string]store.Entry
	signals  []store.MessageSignal
	nextSeq  map[string]int64
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]store.ChatSession),
		messages: make(map[string][]store.ChatMessage),
		entries:  make(map[string]store.Entry),
		nextSeq:  make(map[string]int64),
	}
}

func (f *fakeSessionStore) addSession(userID, sessionID, sessionType string) {
	f.sessions[sessionID] = store.ChatSession{ID: sessionID, UserID: userID, SessionType: sessionType}
}

func (f *fakeSessionStore) GetSession(ctx context.Context, userID, sessionID string) (store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ChatSession{}, apperr.ErrNotFound
	}
	if s.UserID != userID {
		return store.ChatSession{}, apperr.ErrForbidden
	}
	return s, nil
}

func (f *fakeSessionStore) AppendMessage(ctx context.Context, userID, sessionID, role, content string) (store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ChatMessage{}, apperr.ErrNotFound
	}
	if s.UserID != userID {
		return store.ChatMessage{}, apperr.ErrForbidden
	}
	f.nextID++
	seq := f.nextSeq[sessionID] + 1
	f.nextSeq[sessionID] = seq
	msg := store.ChatMessage{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Sequence:  seq,
	}
	f.messages[sessionID] = append(f.messages[sessionID], msg)
	return msg, nil
}

func (f *fakeSessionStore) ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	return append([]store.ChatMessage{}, all[len(all)-limit:]...), nil
}

func (f *fakeSessionStore) GetEntry(ctx context.Context, userID, entryID string) (store.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryID]
	if !ok || e.UserID != userID {
		return store.Entry{}, apperr.ErrNotFound
	}
	return e, nil
}

func (f *fakeSessionStore) WriteMessageSignal(ctx context.Context, sig store.MessageSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	return nil
}

// fakeExtractor returns a fixed signal for every chunk.
type fakeExtractor struct {
	name       string
	sentiment  float64
	crisis     float64
	confidence float64
}

func (f fakeExtractor) Name() string { return f.name }

func (f fakeExtractor) Extract(ctx context.Context, c chunker.Chunk) (signals.Signal, float64, error) {
	sentiment := f.sentiment
	crisis := f.crisis
	return signals.Signal{
		SentimentScore: &sentiment,
		CrisisScore:    &crisis,
	}, f.confidence, nil
}

// fakeProvider is a canned modelrunner.Provider used to exercise Turn's
// generation step without a real LLM call.
type fakeProvider struct {
	text string
	err  error
}

func (p fakeProvider) Generate(ctx context.Context, model, prompt string) (modelrunner.Result, error) {
	if p.err != nil {
		return modelrunner.Result{}, p.err
	}
	return modelrunner.Result{Text: p.text}, nil
}

func (p fakeProvider) Embed(ctx context.Context, model, text string) (modelrunner.Result, error) {
	return modelrunner.Result{}, errors.New("not implemented")
}

func (p fakeProvider) Tokenizer(model string) modelrunner.TokenCounter { return nil }

// fakeCompletionStore is an in-memory fingerprint.CompletionStore.
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

func newTestRegistry(t *testing.T, text string, genErr error) *modelrunner.Registry {
	t.Helper()
	r := modelrunner.NewRegistry()
	r.RegisterBuilder("fake", func(cfg config.ModelConfig) (modelrunner.Provider, error) {
		return fakeProvider{text: text, err: genErr}, nil
	})
	r.LoadFromConfig([]config.ModelConfig{
		{Name: "test-model", Provider: "fake", Model: "test-model", MaxInputTokens: 0, MaxConcurrency: 4},
	})
	return r
}

func newTestService(t *testing.T, fs *fakeSessionStore, genText string, genErr error) *Service {
	t.Helper()
	vec := store.NewMemoryVectorStore(2)
	return New(Deps{
		Store:           fs,
		Vector:          vec,
		Cache:           cache.New(10, nil),
		Runner:          newTestRegistry(t, genText, genErr),
		Coordinator:     fingerprint.NewCoordinator(newFakeCompletionStore(), 60),
		Embedder:        nil,
		Extractors:      []signals.ChunkExtractor{fakeExtractor{name: "sentiment", sentiment: 0.2, crisis: 0.1, confidence: 1}},
		GenerationModel: "test-model",
		AnalysisVersion: "v1",
	})
}

func TestTurn_SuccessAppendsBothMessagesAndInvalidatesCache(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("u1", "s1", "reflective")
	svc := newTestService(t, fs, "hello back", nil)

	res, err := svc.Turn(context.Background(), "u1", "s1", "hi there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserMessage.Content != "hi there" || res.UserMessage.Sequence != 1 {
		t.Fatalf("unexpected user message: %+v", res.UserMessage)
	}
	if res.AssistantMessage.Content != "hello back" || res.AssistantMessage.Sequence != 2 {
		t.Fatalf("unexpected assistant message: %+v", res.AssistantMessage)
	}
	if res.CrisisFlagged {
		t.Fatal("did not expect crisis flag at low crisis score")
	}
	msgs, _ := fs.ListMessages(context.Background(), "u1", "s1", 0)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
}

func TestTurn_GenerationFailureDoesNotPersistAssistantMessage(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("u1", "s1", "reflective")
	svc := newTestService(t, fs, "", errors.New("upstream 500"))

	_, err := svc.Turn(context.Background(), "u1", "s1", "hi there")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperr.ErrModelFault) {
		t.Fatalf("expected ErrModelFault, got %v", err)
	}
	msgs, _ := fs.ListMessages(context.Background(), "u1", "s1", 0)
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message persisted, got %d", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Fatalf("expected surviving message to be the user's, got role %q", msgs[0].Role)
	}
}

func TestTurn_CrisisThresholdExceededFlagsResult(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("u1", "s1", "reflective")
	vec := store.NewMemoryVectorStore(2)
	svc := New(Deps{
		Store:           fs,
		Vector:          vec,
		Cache:           cache.New(10, nil),
		Runner:          newTestRegistry(t, "ok", nil),
		Coordinator:     fingerprint.NewCoordinator(newFakeCompletionStore(), 60),
		Extractors:      []signals.ChunkExtractor{fakeExtractor{name: "crisis", sentiment: -0.5, crisis: 0.9, confidence: 1}},
		GenerationModel: "test-model",
		AnalysisVersion: "v1",
	}, WithCrisisThreshold(0.7))

	res, err := svc.Turn(context.Background(), "u1", "s1", "i feel hopeless")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CrisisFlagged {
		t.Fatal("expected crisis flag")
	}
	if res.CrisisScore == nil || *res.CrisisScore != 0.9 {
		t.Fatalf("unexpected crisis score: %v", res.CrisisScore)
	}
}

func TestTurn_UnknownSessionTypeIsRejected(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("u1", "s1", "unknown-type")
	svc := newTestService(t, fs, "ok", nil)

	_, err := svc.Turn(context.Background(), "u1", "s1", "hi")
	if !errors.Is(err, apperr.ErrInputInvalid) {
		t.Fatalf("expected ErrInputInvalid, got %v", err)
	}
}

func TestTurn_EmptyContentReturnsInputInvalid(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("u1", "s1", "reflective")
	svc := newTestService(t, fs, "ok", nil)

	_, err := svc.Turn(context.Background(), "u1", "s1", "")
	if !errors.Is(err, apperr.ErrInputInvalid) {
		t.Fatalf("expected ErrInputInvalid, got %v", err)
	}
}

func TestAnalyzeMessage_CoordinatorDedupesModelInvocation(t *testing.T) {
	fs := newFakeSessionStore()
	var calls int
	var mu sync.Mutex
	extractor := countingExtractor{fakeExtractor{name: "sentiment", sentiment: 0.2, crisis: 0.1, confidence: 1}, &calls, &mu}
	vec := store.NewMemoryVectorStore(2)
	svc := New(Deps{
		Store:           fs,
		Vector:          vec,
		Cache:           cache.New(10, nil),
		Runner:          newTestRegistry(t, "ok", nil),
		Coordinator:     fingerprint.NewCoordinator(newFakeCompletionStore(), 60),
		Extractors:      []signals.ChunkExtractor{extractor},
		GenerationModel: "test-model",
		AnalysisVersion: "v1",
	})

	msg := store.ChatMessage{ID: "m1", Content: "hello there"}
	agg1, _, err := svc.analyzeMessage(context.Background(), "u1", msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agg2, _, err := svc.analyzeMessage(context.Background(), "u1", msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one model invocation chain, got %d", calls)
	}
	if agg1.SentimentScore == nil || agg2.SentimentScore == nil || *agg1.SentimentScore != *agg2.SentimentScore {
		t.Fatalf("expected identical returned signals, got %+v and %+v", agg1, agg2)
	}
}

// countingExtractor counts Extract calls so tests can assert the
// fingerprint coordinator actually collapsed a repeated analysis call down
// to one model invocation chain, not just one cache lookup.
type countingExtractor struct {
	fakeExtractor
	calls *int
	mu    *sync.Mutex
}

func (c countingExtractor) Extract(ctx context.Context, ch chunker.Chunk) (signals.Signal, float64, error) {
	c.mu.Lock()
	*c.calls++
	c.mu.Unlock()
	return c.fakeExtractor.Extract(ctx, ch)
}

func TestTurn_WrongUserIsForbidden(t *testing.T) {
	fs := newFakeSessionStore()
	fs.addSession("owner", "s1", "reflective")
	svc := newTestService(t, fs, "ok", nil)

	_, err := svc.Turn(context.Background(), "intruder", "s1", "hi")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
