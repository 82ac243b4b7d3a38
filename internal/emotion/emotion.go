// Package emotion provides best-effort sentiment analysis over transcript
// segments. Failures never fail a batch: the runner logs and degrades the
// result to absent.
package emotion

import (
	"context"

	"github.com/qbui/audio-processor/internal/asr"
)

// SegmentResult is the analysis for a single transcript segment.
type SegmentResult struct {
	SegmentIndex int            `json:"segment_index"`
	StartSeconds float64        `json:"start_seconds"`
	EndSeconds   float64        `json:"end_seconds"`
	Speaker      string         `json:"speaker"`
	Text         string         `json:"text"`
	Analysis     map[string]any `json:"analysis"`
}

// Result is the full emotion analysis envelope serialized to the
// emotion.json artifact.
type Result struct {
	Provider        string          `json:"provider"`
	ProviderVersion string          `json:"provider_version"`
	AnalyzedAt      string          `json:"analyzed_at"`
	BatchID         string          `json:"batch_id"`
	Segments        []SegmentResult `json:"segments"`
}

// Engine analyzes transcript segments for sentiment. audioPath is supplied
// for audio-based providers and ignored by text-based ones.
type Engine interface {
	ProviderName() string
	ProviderVersion() string
	Analyze(ctx context.Context, segments []asr.Segment, audioPath string) (*Result, error)
}
