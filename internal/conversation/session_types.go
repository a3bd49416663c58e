package conversation

// SessionTypeConfig captures the per-session-type parameters spec §4.8
// requires: "different session types supply different system directives,
// different K and N for retrieval, and different weightings for recency
// vs. similarity." The session type itself is immutable for the life of a
// session (enforced by store.Store.CreateSession never accepting a change).
type SessionTypeConfig struct {
	SystemDirective  string
	RetrievalK       int // top-K entries by vector similarity
	RecentN          int // last-N messages by recency
	RecencyWeight    float64
	SimilarityWeight float64
	TokenBudget      int
}

// DefaultSessionTypes is the built-in registry; deployments may override it
// entirely via WithSessionTypes.
func DefaultSessionTypes() map[string]SessionTypeConfig {
	return map[string]SessionTypeConfig{
		"reflective": {
			SystemDirective:  "You are a reflective journaling companion. Ask open questions, don't diagnose.",
			RetrievalK:       5,
			RecentN:          10,
			RecencyWeight:    0.4,
			SimilarityWeight: 0.6,
			TokenBudget:      4000,
		},
		"supportive": {
			SystemDirective:  "You are a supportive listener. Prioritize validation over advice.",
			RetrievalK:       3,
			RecentN:          15,
			RecencyWeight:    0.6,
			SimilarityWeight: 0.4,
			TokenBudget:      4000,
		},
		"planning": {
			SystemDirective:  "You help the user turn reflections into concrete next steps.",
			RetrievalK:       8,
			RecentN:          6,
			RecencyWeight:    0.3,
			SimilarityWeight: 0.7,
			TokenBudget:      5000,
		},
	}
}
