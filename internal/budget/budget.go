// Package budget estimates token costs for prompt assembly and trims
// conversation history to fit a model's context window. The assistant runs
// against multiple backends with different tokenizers, so estimation uses a
// conservative character heuristic: 1 token ≈ 4 characters. That slightly
// under-counts, which leaves headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Small enough to fit within 8k-context local models while leaving room
	// for retrieved verse context and the generated answer.
	DefaultMaxContextTokens = 4000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history fits within maxTokens. fixed
// contains messages that must not be trimmed (instruction template, retrieved
// sources, the current question); history contains prior conversation turns
// that may be dropped oldest-first.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned; fixed messages are never dropped here.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	// History is bounded at the cache cap (20 turns); a linear scan dropping
	// the oldest message at a time is clear and fast enough.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
