package storage

import (
	"context"

	"github.com/qbui/audio-processor/internal/metrics"
)

// StatusUpdate is a partial batch status write. Zero-valued optional fields
// are omitted from the persisted record.
type StatusUpdate struct {
	BatchID       string            `json:"batch_id"`
	Status        string            `json:"status"`
	ErrorStage    string            `json:"error_stage,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	RetryCount    int               `json:"retry_count,omitempty"`
	ArtifactPaths map[string]string `json:"artifact_paths,omitempty"`
}

// StageRow is one per-stage timing record persisted for a batch.
type StageRow struct {
	Stage           string  `json:"stage"`
	DurationSeconds float64 `json:"duration_seconds"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// CompletionEvent notifies downstream consumers that a batch reached a
// terminal state.
type CompletionEvent struct {
	BatchID            string            `json:"batch_id"`
	UserID             string            `json:"user_id"`
	Status             string            `json:"status"`
	RecordingStartedAt string            `json:"recording_started_at"`
	ArtifactPaths      map[string]string `json:"artifact_paths"`
	PublishedAt        string            `json:"published_at"`
	ErrorMessage       string            `json:"error_message,omitempty"`
}

// StatusStore persists batch lifecycle state to the remote status store.
// Implementations serialize their own writes per key; callers treat
// failures here as secondary (logged, never masking a pipeline error).
type StatusStore interface {
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	UpdateMetrics(ctx context.Context, m metrics.BatchMetrics) error
	InsertStageRows(ctx context.Context, batchID string, rows []StageRow) error
	PublishCompletionEvent(ctx context.Context, event CompletionEvent) error
}
