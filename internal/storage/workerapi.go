package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qbui/audio-processor/internal/domain"
	"github.com/qbui/audio-processor/internal/metrics"
)

// WorkerAPIConfig holds connection settings for the control-plane internal
// API, which owns the status database and the event bus.
type WorkerAPIConfig struct {
	BaseURL        string
	InternalSecret string
}

// WorkerAPIStore implements StatusStore against the control plane's
// internal HTTP endpoints, authenticated with a shared secret header.
type WorkerAPIStore struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewWorkerAPIStore validates configuration and returns a store.
func NewWorkerAPIStore(cfg WorkerAPIConfig) (*WorkerAPIStore, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("workerapi: base url is required")
	}
	if cfg.InternalSecret == "" {
		return nil, errors.New("workerapi: internal secret is required")
	}
	return &WorkerAPIStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.InternalSecret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *WorkerAPIStore) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	return s.post(ctx, "/internal/batch-status", update, update.BatchID, "status update")
}

func (s *WorkerAPIStore) UpdateMetrics(ctx context.Context, m metrics.BatchMetrics) error {
	payload := map[string]any{
		"batch_id":                     m.BatchID,
		"status":                       m.Status,
		"processing_completed_at":      time.Now().UTC().Format(time.RFC3339),
		"processing_wall_time_seconds": m.ProcessingWallTimeSeconds,
		"raw_audio_duration_seconds":   m.RawAudioDurationSeconds,
		"speech_duration_seconds":      m.SpeechDurationSeconds,
		"speech_ratio":                 m.SpeechRatio,
		"raw_audio_size_bytes":         m.RawAudioSizeBytes,
		"cleaned_audio_size_bytes":     m.CleanedAudioSizeBytes,
		"speechmatics_job_id":          m.ASRJobID,
		"speechmatics_cost_estimate":   m.ASRCostEstimate,
		"retry_count":                  m.RetryCount,
	}
	if m.ErrorStage != "" {
		payload["error_stage"] = m.ErrorStage
	}
	if m.ErrorMessage != "" {
		payload["error_message"] = m.ErrorMessage
	}
	return s.post(ctx, "/internal/batch-status", payload, m.BatchID, "metrics update")
}

func (s *WorkerAPIStore) InsertStageRows(ctx context.Context, batchID string, rows []StageRow) error {
	if len(rows) == 0 {
		return nil
	}
	payload := map[string]any{
		"batch_id": batchID,
		"stages":   rows,
	}
	return s.post(ctx, "/internal/processing-stages", payload, batchID, "stage insert")
}

func (s *WorkerAPIStore) PublishCompletionEvent(ctx context.Context, event CompletionEvent) error {
	return s.post(ctx, "/internal/publish-event", event, event.BatchID, "completion event publish")
}

func (s *WorkerAPIStore) post(ctx context.Context, path string, payload any, batchID, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewStorageError(batchID, fmt.Sprintf("failed to encode %s payload", operation), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return domain.NewStorageError(batchID, fmt.Sprintf("failed to build %s request", operation), err)
	}
	req.Header.Set("X-Internal-Secret", s.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewStorageError(batchID, fmt.Sprintf("%s failed", operation), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.NewStorageError(batchID,
			fmt.Sprintf("%s failed with status %d: %s", operation, resp.StatusCode, text), nil)
	}
	return nil
}
