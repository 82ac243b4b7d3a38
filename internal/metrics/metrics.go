// Package metrics collects per-batch observability data: stage timing
// records and the flattened batch metrics snapshot emitted once per
// terminal state.
package metrics

import (
	"context"
	"log/slog"
)

// SpeechmaticsCostPerSecond is the estimated ASR cost rate (USD 0.24/hour).
const SpeechmaticsCostPerSecond = 0.24 / 3600.0

// BatchMetrics is the flattened per-batch snapshot written once per
// terminal state. Field names align with the existing batch_metrics schema.
type BatchMetrics struct {
	BatchID                    string  `json:"batch_id"`
	UserID                     string  `json:"user_id"`
	Status                     string  `json:"status"`
	RawAudioDurationSeconds    float64 `json:"raw_audio_duration_seconds"`
	SpeechDurationSeconds      float64 `json:"speech_duration_seconds"`
	SpeechRatio                float64 `json:"speech_ratio"`
	ProcessingWallTimeSeconds  float64 `json:"processing_wall_time_seconds"`
	QueueWaitTimeSeconds       float64 `json:"queue_wait_time_seconds"`
	RawAudioSizeBytes          int64   `json:"raw_audio_size_bytes"`
	CleanedAudioSizeBytes      int64   `json:"cleaned_audio_size_bytes"`
	ASRJobID                   string  `json:"speechmatics_job_id"`
	ASRCostEstimate            float64 `json:"speechmatics_cost_estimate"`
	TranscodeDurationSeconds   float64 `json:"transcode_duration_seconds"`
	VADDurationSeconds         float64 `json:"vad_duration_seconds"`
	DenoiseDurationSeconds     float64 `json:"denoise_duration_seconds"`
	ASRSubmitDurationSeconds   float64 `json:"asr_submit_duration_seconds"`
	ASRWaitDurationSeconds     float64 `json:"asr_wait_duration_seconds"`
	PostProcessDurationSeconds float64 `json:"post_process_duration_seconds"`
	RetryCount                 int     `json:"retry_count"`
	ErrorStage                 string  `json:"error_stage,omitempty"`
	ErrorMessage               string  `json:"error_message,omitempty"`
}

// Emitter writes batch metrics as a single structured log line, picked up
// by the log pipeline for export to the metrics warehouse.
type Emitter struct {
	logger *slog.Logger
}

// NewEmitter returns an Emitter writing through logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Emit logs one batch_completion record with every metrics field flattened
// to a top-level attribute.
func (e *Emitter) Emit(m BatchMetrics) {
	attrs := []slog.Attr{
		slog.String("metric_type", "batch_completion"),
		slog.String("batch_id", m.BatchID),
		slog.String("user_id", m.UserID),
		slog.String("status", m.Status),
		slog.Float64("raw_audio_duration_seconds", m.RawAudioDurationSeconds),
		slog.Float64("speech_duration_seconds", m.SpeechDurationSeconds),
		slog.Float64("speech_ratio", m.SpeechRatio),
		slog.Float64("processing_wall_time_seconds", m.ProcessingWallTimeSeconds),
		slog.Float64("queue_wait_time_seconds", m.QueueWaitTimeSeconds),
		slog.Int64("raw_audio_size_bytes", m.RawAudioSizeBytes),
		slog.Int64("cleaned_audio_size_bytes", m.CleanedAudioSizeBytes),
		slog.String("speechmatics_job_id", m.ASRJobID),
		slog.Float64("speechmatics_cost_estimate", m.ASRCostEstimate),
		slog.Float64("transcode_duration_seconds", m.TranscodeDurationSeconds),
		slog.Float64("vad_duration_seconds", m.VADDurationSeconds),
		slog.Float64("denoise_duration_seconds", m.DenoiseDurationSeconds),
		slog.Float64("asr_submit_duration_seconds", m.ASRSubmitDurationSeconds),
		slog.Float64("asr_wait_duration_seconds", m.ASRWaitDurationSeconds),
		slog.Float64("post_process_duration_seconds", m.PostProcessDurationSeconds),
		slog.Int("retry_count", m.RetryCount),
	}
	if m.ErrorStage != "" {
		attrs = append(attrs, slog.String("error_stage", m.ErrorStage))
	}
	if m.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error_message", m.ErrorMessage))
	}

	e.logger.LogAttrs(context.Background(), slog.LevelInfo, "batch metrics", attrs...)
}
