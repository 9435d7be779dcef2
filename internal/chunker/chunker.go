// Package chunker groups question texts into token-bounded batches for
// language-model requests.
package chunker

import "strings"

// Config controls batching behavior.
type Config struct {
	BatchTokens int // Target estimated tokens per batch.
	MaxItems    int // Upper bound on items per batch.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchTokens: 1200,
		MaxItems:    25,
	}
}

// Batch is the half-open index range [Start, End) of a batch.
type Batch struct {
	Start, End int
}

// Len is the number of items in the batch.
func (b Batch) Len() int { return b.End - b.Start }

// Batches splits texts into consecutive batches. Every index lands in exactly
// one batch, in order; an item above the budget forms a batch of its own.
func Batches(texts []string, cfg Config) []Batch {
	if cfg.BatchTokens <= 0 {
		cfg.BatchTokens = 1200
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 25
	}

	var out []Batch
	start, tokens := 0, 0
	for i, text := range texts {
		t := EstimateTokens(text)
		if i > start && (tokens+t > cfg.BatchTokens || i-start >= cfg.MaxItems) {
			out = append(out, Batch{Start: start, End: i})
			start, tokens = i, 0
		}
		tokens += t
	}
	if start < len(texts) {
		out = append(out, Batch{Start: start, End: len(texts)})
	}
	return out
}

// EstimateTokens gives a rough token count. Exam text is dense with symbols,
// so the larger of the word-based and character-based estimates is used.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byWords := int(float64(len(strings.Fields(text))) * 1.33)
	byChars := len(text) / 4
	tokens := max(byWords, byChars)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
