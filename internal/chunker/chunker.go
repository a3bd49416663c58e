// Package chunker splits arbitrary-length text into overlapping,
// token-budgeted windows for the model runner and signal extractors.
package chunker

import (
	"strings"

	"innerlog/internal/util"
)

// Chunk is one ordered window of a chunked document.
type Chunk struct {
	ByteOffset          int
	ByteLength          int
	Text                string
	EstimatedTokenCount int
	WeightHint          float64
}

// Options configures a chunking pass. TokenBudget (B) bounds each window's
// estimated token count; Overlap (O) is the number of tokens of trailing
// context repeated at the start of the next window, 0 <= Overlap < TokenBudget.
type Options struct {
	TokenBudget int
	Overlap     int
}

// charsPerToken is the same rough heuristic the teacher's chunker uses to
// turn a token budget into a byte budget without loading a real tokenizer;
// the model runner re-validates and truncates as a safety net.
const charsPerToken = 4

// Chunk splits text into an ordered sequence of overlapping windows. The
// unique (non-overlap) spans of the returned chunks, concatenated in order,
// reconstruct text exactly. Empty text yields an empty slice. Text shorter
// than the token budget yields exactly one window.
func Chunk(text string, opt Options) []Chunk {
	if text == "" {
		return nil
	}
	budget := opt.TokenBudget
	if budget <= 0 {
		budget = 512
	}
	overlap := opt.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= budget {
		overlap = budget - 1
	}
	tgtBytes := budget * charsPerToken
	if tgtBytes < 32 {
		tgtBytes = 32
	}
	ovBytes := overlap * charsPerToken

	var out []Chunk
	prevEnd := 0
	start := 0
	for start < len(text) {
		end := start + tgtBytes
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndexByte(text[start:end], ' '); i > tgtBytes/2 {
			// Prefer ending on a whitespace boundary for extractor quality;
			// this only ever shrinks the window, so the contiguity
			// invariant below still holds.
			end = start + i
		}
		if end <= start {
			end = start + 1
			if end > len(text) {
				end = len(text)
			}
		}

		uniqueStart := prevEnd
		if uniqueStart < start {
			// First window: no predecessor, unique span starts at 0.
			uniqueStart = start
		}
		uniqueLen := end - uniqueStart
		if uniqueLen < 0 {
			uniqueLen = 0
		}

		out = append(out, Chunk{
			ByteOffset:          start,
			ByteLength:          end - start,
			Text:                text[start:end],
			EstimatedTokenCount: util.CountTokens(text[start:end]),
			WeightHint:          float64(uniqueLen) / float64(len(text)),
		})
		prevEnd = end

		if end == len(text) {
			break
		}
		next := end - ovBytes
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
