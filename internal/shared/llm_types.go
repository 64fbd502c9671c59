package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Outcomes of a generation run.
const (
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
)

// AgentMeta holds operational metadata for a single generation run.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
	Outcome   string
}
