// Package fingerprint computes content fingerprints for entries and chat
// messages and coordinates at-most-once analysis against them, per spec
// §4.2's Absent -> Running -> (Succeeded|Failed) -> Absent state machine.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var collapseRe = regexp.MustCompile(`(?s)[\t\x0b\x0c\r ]+`)

// Normalize applies Unicode NFC normalization and collapses horizontal
// whitespace runs, so two entries differing only in composed/decomposed
// accents or incidental spacing hash identically. Adapted from the
// teacher's rag/ingest.normalizeWhitespace, generalized to Unicode NFC via
// golang.org/x/text/unicode/norm instead of ASCII-only regexp collapsing.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = collapseRe.ReplaceAllString(s, " ")
	s = regexp.MustCompile(`\n{3,}`).ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Compute derives the fingerprint of one analyzable unit: normalized text,
// scoped by owner, unit ID and analysis version so a prompt/model upgrade forces
// re-analysis of otherwise-identical content. Adapted from the teacher's
// rag/ingest.ComputeHash (there: text+source+url; here: text+scope+version).
func Compute(ownerID, unitID, text, analysisVersion string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(text)))
	h.Write([]byte{'|'})
	h.Write([]byte(ownerID))
	h.Write([]byte{'|'})
	h.Write([]byte(unitID))
	h.Write([]byte{'|'})
	h.Write([]byte(analysisVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Status is a fingerprint's position in the Absent/Running/Succeeded/Failed
// state machine.
type Status string

const (
	StatusAbsent    Status = "absent"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// CompletionStore persists the terminal outcome of a fingerprint's analysis
// run, scoped by a TTL, so a later request for the same fingerprint within
// the window is answered from the store instead of re-running analysis.
// Grounded on the teacher's orchestrator.DedupeStore interface.
type CompletionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttlSeconds int) error
}
