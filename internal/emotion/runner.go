package emotion

import (
	"context"
	"log/slog"
	"time"

	"github.com/qbui/audio-processor/internal/asr"
)

// Runner executes emotion analysis best-effort: an unset provider skips
// analysis, and any engine failure is logged and converted to a nil result
// so the main pipeline flow is never disturbed.
type Runner struct {
	engine Engine
	logger *slog.Logger
}

// NewRunner wires an optional engine. A nil engine disables analysis.
func NewRunner(engine Engine, logger *slog.Logger) *Runner {
	return &Runner{engine: engine, logger: logger}
}

// Run analyzes the transcript. Returns nil when analysis is disabled,
// fails, or when called with a nil transcript. A transcript with no
// segments yields an empty (non-nil) result.
func (r *Runner) Run(ctx context.Context, transcript *asr.Transcript, audioPath, batchID string) *Result {
	if r.engine == nil || transcript == nil {
		return nil
	}

	if len(transcript.Segments) == 0 {
		return &Result{
			Provider:        r.engine.ProviderName(),
			ProviderVersion: r.engine.ProviderVersion(),
			AnalyzedAt:      time.Now().UTC().Format(time.RFC3339),
			BatchID:         batchID,
			Segments:        []SegmentResult{},
		}
	}

	result, err := r.engine.Analyze(ctx, transcript.Segments, audioPath)
	if err != nil {
		r.logger.Error("Emotion analysis failed",
			slog.String("provider", r.engine.ProviderName()),
			slog.String("batch_id", batchID),
			slog.Any("error", err),
		)
		return nil
	}

	result.BatchID = batchID
	return result
}
