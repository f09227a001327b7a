// Package llm provides the generation-service client used to produce
// debate messages.
package llm

import (
	"context"
)

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is a completed generation.
type Result struct {
	Content      string
	TokensUsed   int
	Model        string
	FinishReason string
	ResponseTime int64 // milliseconds
}

// Provider generates completions. Implementations must respect context
// cancellation; the debate scheduler cancels in-flight generations when
// a session stops.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
	Name() string
}

// FallbackStatement is spoken in place of a generated argument when the
// provider fails, so a debate turn always has usable content.
const FallbackStatement = "I need a moment to gather my thoughts on this point, but I maintain my position."

// EstimateTokens approximates the token count of a text at four
// characters per token, rounding up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateCost converts a token count to dollars at a per-1K rate.
func EstimateCost(tokens int, costPer1KTokens float64) float64 {
	return float64(tokens) / 1000 * costPer1KTokens
}
