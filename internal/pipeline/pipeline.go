// Package pipeline sequences one batch through the fixed processing stages,
// records per-stage timings, and guarantees exactly one durably reported
// terminal outcome per run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/qbui/audio-processor/internal/asr"
	"github.com/qbui/audio-processor/internal/audio"
	"github.com/qbui/audio-processor/internal/audio/denoise"
	"github.com/qbui/audio-processor/internal/audio/vad"
	"github.com/qbui/audio-processor/internal/domain"
	"github.com/qbui/audio-processor/internal/emotion"
	"github.com/qbui/audio-processor/internal/metrics"
	"github.com/qbui/audio-processor/internal/retry"
	"github.com/qbui/audio-processor/internal/storage"
)

// Config wires the pipeline's collaborators.
type Config struct {
	Blobs      storage.BlobStore
	Status     storage.StatusStore
	Transcoder audio.Transcoder
	VAD        vad.Engine
	Denoise    denoise.Engine
	ASR        asr.Engine
	Emotion    *emotion.Runner
	Emitter    *metrics.Emitter
	Logger     *slog.Logger

	// Language is passed through to the ASR engine. Defaults to "en".
	Language string

	// MaxRetries and BaseDelay parameterize every retried call site.
	MaxRetries int
	BaseDelay  time.Duration
}

// Pipeline drives batches through the ordered stages. Safe for sequential
// reuse; each ProcessBatch call owns its own working state.
type Pipeline struct {
	blobs      storage.BlobStore
	status     storage.StatusStore
	transcoder audio.Transcoder
	vad        vad.Engine
	denoise    denoise.Engine
	asr        asr.Engine
	emotion    *emotion.Runner
	emitter    *metrics.Emitter
	logger     *slog.Logger
	language   string

	fetchRetry retry.Config
	asrRetry   retry.Config
	storeRetry retry.Config

	now func() time.Time
}

// New builds a Pipeline from cfg, applying defaults for unset values.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	emotionRunner := cfg.Emotion
	if emotionRunner == nil {
		emotionRunner = emotion.NewRunner(nil, logger)
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = metrics.NewEmitter(logger)
	}

	retryConfig := func(kind domain.ErrorKind) retry.Config {
		return retry.Config{
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
			Retryable:  retry.AllowKinds(kind),
			Logger:     logger,
		}
	}

	return &Pipeline{
		blobs:      cfg.Blobs,
		status:     cfg.Status,
		transcoder: cfg.Transcoder,
		vad:        cfg.VAD,
		denoise:    cfg.Denoise,
		asr:        cfg.ASR,
		emotion:    emotionRunner,
		emitter:    emitter,
		logger:     logger,
		language:   language,
		fetchRetry: retryConfig(domain.ErrKindFetch),
		asrRetry:   retryConfig(domain.ErrKindASR),
		storeRetry: retryConfig(domain.ErrKindStorage),
		now:        time.Now,
	}
}

// Option adjusts a single ProcessBatch invocation.
type Option func(*batchRun)

// WithQueueWaitTime records how long the job sat in the queue before this
// run began, for inclusion in the batch metrics.
func WithQueueWaitTime(seconds float64) Option {
	return func(run *batchRun) {
		if seconds > 0 {
			run.queueWaitSeconds = seconds
		}
	}
}

// batchRun is the accumulated state of one ProcessBatch invocation.
type batchRun struct {
	batchID          string
	userID           string
	workDir          string
	startedAt        time.Time
	queueWaitSeconds float64

	rec       *metrics.StageRecorder
	artifacts map[string]string

	rawAudio   []byte
	transcoded *audio.TranscodeResult
	vadResult  *vad.Result
	denoised   *denoise.Result
	transcript *asr.Transcript
	formatted  string
	emotion    *emotion.Result
	zeroSpeech bool
}

// ProcessBatch runs one batch to a terminal state. It never returns an
// error: every path, including total failure, yields a Result and durably
// reports it best-effort.
func (p *Pipeline) ProcessBatch(ctx context.Context, batchID, userID string, opts ...Option) *Result {
	run := &batchRun{
		batchID:   batchID,
		userID:    userID,
		startedAt: p.now(),
		rec:       metrics.NewStageRecorder(),
		artifacts: map[string]string{
			ArtifactRawAudio: rawAudioKey(userID, batchID),
		},
	}
	for _, opt := range opts {
		opt(run)
	}

	p.logger.Info("Starting batch processing",
		slog.String("batch_id", batchID),
		slog.String("user_id", userID),
	)

	workDir, err := os.MkdirTemp("", "batch-*")
	if err != nil {
		return p.handleFailure(ctx, run,
			domain.NewStorageError(batchID, "failed to create working directory", err))
	}
	run.workDir = workDir
	defer os.RemoveAll(workDir)

	if err := p.execute(ctx, run); err != nil {
		return p.handleFailure(ctx, run, err)
	}

	m := p.buildMetrics(run, StatusCompleted)
	p.emitter.Emit(m)

	p.logger.Info("Batch processing completed",
		slog.String("batch_id", batchID),
		slog.Bool("zero_speech", run.zeroSpeech),
	)

	return &Result{
		Status:        StatusCompleted,
		BatchID:       batchID,
		ArtifactPaths: run.artifacts,
		Metrics:       m,
	}
}

// execute runs the ordered stages, returning the first stage error.
func (p *Pipeline) execute(ctx context.Context, run *batchRun) error {
	inputPath := filepath.Join(run.workDir, "recording.m4a")

	if err := run.rec.Run(StageFetch, func() error {
		data, err := retry.Do(ctx, p.fetchRetry, func(ctx context.Context) ([]byte, error) {
			return p.blobs.Fetch(ctx, run.artifacts[ArtifactRawAudio])
		})
		if err != nil {
			return err
		}
		run.rawAudio = data
		if err := os.WriteFile(inputPath, data, 0o644); err != nil {
			return domain.NewStorageError(run.batchID, "failed to write raw audio to workspace", err)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := run.rec.Run(StageTranscode, func() error {
		result, err := p.transcoder.Transcode(ctx, inputPath, run.workDir)
		if err != nil {
			return err
		}
		run.transcoded = result
		return nil
	}); err != nil {
		return err
	}

	if err := run.rec.Run(StageVAD, func() error {
		outputDir := filepath.Join(run.workDir, "vad")
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return domain.NewVADError(run.batchID, "failed to create vad output directory", err)
		}
		result, err := p.vad.Process(run.transcoded.OutputPath, outputDir)
		if err != nil {
			return err
		}
		run.vadResult = result
		return nil
	}); err != nil {
		return err
	}

	if len(run.vadResult.Segments) == 0 || run.vadResult.SpeechDurationSeconds == 0 {
		run.zeroSpeech = true
		p.logger.Info("No speech detected, taking zero-speech path",
			slog.String("batch_id", run.batchID),
		)
		return p.finishStages(ctx, run)
	}

	if err := run.rec.Run(StageDenoise, func() error {
		outputDir := filepath.Join(run.workDir, "denoise")
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return domain.NewDenoiseError(run.batchID, "failed to create denoise output directory", err)
		}
		result, err := p.denoise.Process(run.vadResult.OutputPath, outputDir)
		if err != nil {
			return err
		}
		run.denoised = result
		return nil
	}); err != nil {
		return err
	}

	if err := run.rec.Run(StageASR, func() error {
		transcript, err := retry.Do(ctx, p.asrRetry, func(ctx context.Context) (*asr.Transcript, error) {
			return p.asr.Transcribe(ctx, run.denoised.OutputPath, asr.Metadata{
				BatchID:  run.batchID,
				Language: p.language,
			})
		})
		if err != nil {
			return err
		}
		run.transcript = transcript
		return nil
	}); err != nil {
		return err
	}

	if err := run.rec.Run(StagePostprocess, func() error {
		run.formatted = asr.FormatTranscript(run.transcript)
		return nil
	}); err != nil {
		return err
	}

	// Best-effort by contract: the runner logs and returns nil on failure.
	_ = run.rec.Run(StageEmotion, func() error {
		run.emotion = p.emotion.Run(ctx, run.transcript, run.denoised.OutputPath, run.batchID)
		return nil
	})

	return p.finishStages(ctx, run)
}

// finishStages runs store, status_update, and publish_event — shared by the
// normal and zero-speech paths.
func (p *Pipeline) finishStages(ctx context.Context, run *batchRun) error {
	if err := run.rec.Run(StageStore, func() error {
		return p.storeArtifacts(ctx, run)
	}); err != nil {
		return err
	}

	if err := run.rec.Run(StageStatusUpdate, func() error {
		if err := p.status.UpdateStatus(ctx, storage.StatusUpdate{
			BatchID:       run.batchID,
			Status:        StatusCompleted,
			ArtifactPaths: run.artifacts,
		}); err != nil {
			return err
		}
		if err := p.status.UpdateMetrics(ctx, p.buildMetrics(run, StatusCompleted)); err != nil {
			return err
		}
		return p.status.InsertStageRows(ctx, run.batchID, buildStageRows(run.rec, ""))
	}); err != nil {
		return err
	}

	return run.rec.Run(StagePublishEvent, func() error {
		event := buildCompletionEvent(run.batchID, run.userID, StatusCompleted,
			run.artifacts, parseBatchTimestamp(run.batchID), "", p.now())
		return p.status.PublishCompletionEvent(ctx, event)
	})
}

// storeArtifacts uploads every produced artifact, recording its key. The
// zero-speech path writes only the (empty) formatted transcript; the raw
// audio object already exists and is never rewritten or deleted.
func (p *Pipeline) storeArtifacts(ctx context.Context, run *batchRun) error {
	put := func(key string, data []byte, contentType string) error {
		_, err := retry.Do(ctx, p.storeRetry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.blobs.Put(ctx, key, data, contentType)
		})
		return err
	}

	key := transcriptKey(run.userID, run.batchID)
	if err := put(key, []byte(run.formatted), "text/plain; charset=utf-8"); err != nil {
		return err
	}
	run.artifacts[ArtifactTranscript] = key

	if run.zeroSpeech {
		return nil
	}

	cleaned, err := os.ReadFile(run.denoised.OutputPath)
	if err != nil {
		return domain.NewStorageError(run.batchID, "failed to read cleaned audio", err)
	}
	key = cleanedAudioKey(run.userID, run.batchID)
	if err := put(key, cleaned, "audio/wav"); err != nil {
		return err
	}
	run.artifacts[ArtifactCleanedAudio] = key

	rawJSON, err := json.Marshal(run.transcript.RawResponse)
	if err != nil {
		return domain.NewStorageError(run.batchID, "failed to encode raw transcript", err)
	}
	key = rawTranscriptKey(run.userID, run.batchID)
	if err := put(key, rawJSON, "application/json"); err != nil {
		return err
	}
	run.artifacts[ArtifactRawTranscript] = key

	if run.emotion != nil {
		emotionJSON, err := json.Marshal(run.emotion)
		if err != nil {
			return domain.NewStorageError(run.batchID, "failed to encode emotion result", err)
		}
		key = emotionKey(run.userID, run.batchID)
		if err := put(key, emotionJSON, "application/json"); err != nil {
			return err
		}
		run.artifacts[ArtifactEmotion] = key
	}

	return nil
}

// handleFailure converts a stage error into a failed Result and best-effort
// persists the failure. Secondary persistence failures are logged and never
// mask the original error.
func (p *Pipeline) handleFailure(ctx context.Context, run *batchRun, stageErr error) *Result {
	stage := determineErrorStage(run.rec)
	message := stageErr.Error()

	p.logger.Error("Batch processing failed",
		slog.String("batch_id", run.batchID),
		slog.String("stage", stage),
		slog.Any("error", stageErr),
	)

	m := p.buildMetrics(run, StatusFailed)
	m.ErrorStage = stage
	m.ErrorMessage = message
	m.RetryCount = retriesConsumed(stageErr)

	if err := p.status.UpdateStatus(ctx, storage.StatusUpdate{
		BatchID:       run.batchID,
		Status:        StatusFailed,
		ErrorStage:    stage,
		ErrorMessage:  message,
		RetryCount:    m.RetryCount,
		ArtifactPaths: run.artifacts,
	}); err != nil {
		p.logger.Error("Failed to persist failed status",
			slog.String("batch_id", run.batchID),
			slog.Any("error", err),
		)
	}

	if err := p.status.UpdateMetrics(ctx, m); err != nil {
		p.logger.Error("Failed to persist failure metrics",
			slog.String("batch_id", run.batchID),
			slog.Any("error", err),
		)
	}

	if err := p.status.InsertStageRows(ctx, run.batchID, buildStageRows(run.rec, message)); err != nil {
		p.logger.Error("Failed to persist stage rows",
			slog.String("batch_id", run.batchID),
			slog.Any("error", err),
		)
	}

	event := buildCompletionEvent(run.batchID, run.userID, StatusFailed,
		run.artifacts, parseBatchTimestamp(run.batchID), message, p.now())
	if err := p.status.PublishCompletionEvent(ctx, event); err != nil {
		p.logger.Error("Failed to publish failure event",
			slog.String("batch_id", run.batchID),
			slog.Any("error", err),
		)
	}

	p.emitter.Emit(m)

	return &Result{
		Status:        StatusFailed,
		BatchID:       run.batchID,
		ArtifactPaths: run.artifacts,
		Metrics:       m,
		Error: &ProcessingError{
			Stage:         stage,
			Message:       message,
			ExceptionType: domain.KindOf(stageErr),
		},
	}
}

// buildMetrics flattens the run state into the write-once metrics record.
// The ASR engine blocks through job completion, so the wait time folds into
// the submit duration and asr_wait stays zero.
func (p *Pipeline) buildMetrics(run *batchRun, status string) metrics.BatchMetrics {
	m := metrics.BatchMetrics{
		BatchID:                    run.batchID,
		UserID:                     run.userID,
		Status:                     status,
		ProcessingWallTimeSeconds:  p.now().Sub(run.startedAt).Seconds(),
		QueueWaitTimeSeconds:       run.queueWaitSeconds,
		RawAudioSizeBytes:          int64(len(run.rawAudio)),
		TranscodeDurationSeconds:   run.rec.Seconds(StageTranscode),
		VADDurationSeconds:         run.rec.Seconds(StageVAD),
		DenoiseDurationSeconds:     run.rec.Seconds(StageDenoise),
		ASRSubmitDurationSeconds:   run.rec.Seconds(StageASR),
		PostProcessDurationSeconds: run.rec.Seconds(StagePostprocess),
	}
	if run.transcoded != nil {
		m.RawAudioDurationSeconds = run.transcoded.DurationSeconds
	}
	if run.vadResult != nil {
		m.SpeechDurationSeconds = run.vadResult.SpeechDurationSeconds
		m.SpeechRatio = run.vadResult.SpeechRatio
	}
	if run.denoised != nil {
		m.CleanedAudioSizeBytes = run.denoised.OutputSizeBytes
	}
	if run.transcript != nil {
		m.ASRJobID = run.transcript.JobID
		m.ASRCostEstimate = run.vadResult.SpeechDurationSeconds * metrics.SpeechmaticsCostPerSecond
	}
	return m
}

// retriesConsumed extracts the retry count carried by an exhausted or
// non-retryable operation error.
func retriesConsumed(err error) int {
	var attemptsErr *retry.AttemptsError
	if errors.As(err, &attemptsErr) {
		return attemptsErr.Attempts
	}
	return 0
}
