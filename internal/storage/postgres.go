package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/qbui/audio-processor/internal/domain"
	"github.com/qbui/audio-processor/internal/metrics"
)

// EventPublisher pushes completion events onto the message bus. Satisfied
// by the shared RabbitMQ client.
type EventPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// PostgresStore implements StatusStore directly against the batches and
// processing_stages tables, publishing completion events through the
// message bus instead of the control-plane API.
type PostgresStore struct {
	db        *sqlx.DB
	publisher EventPublisher
	logger    *slog.Logger
}

// NewPostgresStore wires the database handle and event publisher.
func NewPostgresStore(db *sqlx.DB, publisher EventPublisher, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, publisher: publisher, logger: logger}
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	var artifactJSON []byte
	if update.ArtifactPaths != nil {
		var err error
		artifactJSON, err = json.Marshal(update.ArtifactPaths)
		if err != nil {
			return domain.NewStorageError(update.BatchID, "failed to marshal artifact paths", err)
		}
	}

	query := `
		UPDATE batches
		SET status = $1,
		    error_stage = NULLIF($2, ''),
		    error_message = NULLIF($3, ''),
		    retry_count = GREATEST(retry_count, $4),
		    artifact_paths = COALESCE($5, artifact_paths),
		    updated_at = NOW()
		WHERE batch_id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		update.Status, update.ErrorStage, update.ErrorMessage,
		update.RetryCount, artifactJSON, update.BatchID,
	)
	if err != nil {
		return domain.NewStorageError(update.BatchID, "status update failed", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		s.logger.Warn("Status update matched no batch row",
			slog.String("batch_id", update.BatchID),
			slog.String("status", update.Status),
		)
	}
	return nil
}

func (s *PostgresStore) UpdateMetrics(ctx context.Context, m metrics.BatchMetrics) error {
	query := `
		UPDATE batches
		SET status = $1,
		    processing_completed_at = NOW(),
		    processing_wall_time_seconds = $2,
		    raw_audio_duration_seconds = $3,
		    speech_duration_seconds = $4,
		    speech_ratio = $5,
		    raw_audio_size_bytes = $6,
		    cleaned_audio_size_bytes = $7,
		    speechmatics_job_id = $8,
		    speechmatics_cost_estimate = $9,
		    error_stage = NULLIF($10, ''),
		    error_message = NULLIF($11, ''),
		    retry_count = $12,
		    updated_at = NOW()
		WHERE batch_id = $13
	`

	_, err := s.db.ExecContext(ctx, query,
		m.Status, m.ProcessingWallTimeSeconds, m.RawAudioDurationSeconds,
		m.SpeechDurationSeconds, m.SpeechRatio, m.RawAudioSizeBytes,
		m.CleanedAudioSizeBytes, m.ASRJobID, m.ASRCostEstimate,
		m.ErrorStage, m.ErrorMessage, m.RetryCount, m.BatchID,
	)
	if err != nil {
		return domain.NewStorageError(m.BatchID, "metrics update failed", err)
	}
	return nil
}

func (s *PostgresStore) InsertStageRows(ctx context.Context, batchID string, rows []StageRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO processing_stages (batch_id, stage, duration_seconds, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
	`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(batchID, "failed to begin stage insert", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			batchID, row.Stage, row.DurationSeconds, row.Success, row.ErrorMessage,
		); err != nil {
			return domain.NewStorageError(batchID,
				fmt.Sprintf("failed to insert stage row %q", row.Stage), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError(batchID, "failed to commit stage rows", err)
	}
	return nil
}

func (s *PostgresStore) PublishCompletionEvent(ctx context.Context, event CompletionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return domain.NewStorageError(event.BatchID, "failed to marshal completion event", err)
	}
	if err := s.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return domain.NewStorageError(event.BatchID, "completion event publish failed", err)
	}
	return nil
}

// GetBatchStatus reads the current status row for the ops lookup endpoint.
func (s *PostgresStore) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	query := `
		SELECT batch_id, status,
		       COALESCE(error_stage, '') AS error_stage,
		       COALESCE(error_message, '') AS error_message,
		       COALESCE(retry_count, 0) AS retry_count
		FROM batches
		WHERE batch_id = $1
	`

	var status BatchStatus
	if err := s.db.GetContext(ctx, &status, query, batchID); err != nil {
		return nil, domain.NewStorageError(batchID, "batch status lookup failed", err)
	}
	return &status, nil
}

// BatchStatus is the read-side view served by the ops endpoint.
type BatchStatus struct {
	BatchID      string `db:"batch_id" json:"batch_id"`
	Status       string `db:"status" json:"status"`
	ErrorStage   string `db:"error_stage" json:"error_stage,omitempty"`
	ErrorMessage string `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int    `db:"retry_count" json:"retry_count"`
}
