package collab

import "context"

// Provider identifies an AI summarization backend.
type Provider string

// Supported summary providers.
const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// OpenAIConfig configures the OpenAI summarizer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// GeminiConfig configures the Gemini summarizer.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// SummaryRequest asks for a transcript summary.
type SummaryRequest struct {
	TranscriptText    string
	MediaURL          string
	MaxTokens         int
	Language          string
	IncludeTimestamps bool
}

// TimestampedPoint is one timeline highlight in a summary.
type TimestampedPoint struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

// SummaryResponse is the summarizer's answer.
type SummaryResponse struct {
	Summary           string             `json:"summary"`
	KeyPoints         []string           `json:"keyPoints"`
	Timestamps        []TimestampedPoint `json:"timestamps,omitempty"`
	SourceAttribution string             `json:"sourceAttribution,omitempty"`
	Provider          Provider           `json:"provider"`
	TokensUsed        int                `json:"tokensUsed"`
}

// DefaultSummaryRequest applies the documented request defaults.
func DefaultSummaryRequest(transcript string) SummaryRequest {
	return SummaryRequest{
		TranscriptText: transcript,
		MaxTokens:      500,
		Language:       "en",
	}
}

// AiSummarizer summarizes a transcript via an external provider.
// Validate reports whether the provider is usable (credentials present,
// endpoint reachable) without performing a summarization.
type AiSummarizer interface {
	Validate(ctx context.Context) bool
	Summarize(ctx context.Context, req SummaryRequest) (*SummaryResponse, error)
}
