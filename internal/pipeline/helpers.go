package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/qbui/audio-processor/internal/metrics"
	"github.com/qbui/audio-processor/internal/storage"
)

// Pipeline stage names, in execution order.
const (
	StageFetch        = "fetch"
	StageTranscode    = "transcode"
	StageVAD          = "vad"
	StageDenoise      = "denoise"
	StageASR          = "asr"
	StagePostprocess  = "postprocess"
	StageEmotion      = "emotion"
	StageStore        = "store"
	StageStatusUpdate = "status_update"
	StagePublishEvent = "publish_event"
)

var stageOrder = []string{
	StageFetch,
	StageTranscode,
	StageVAD,
	StageDenoise,
	StageASR,
	StagePostprocess,
	StageEmotion,
	StageStore,
	StageStatusUpdate,
	StagePublishEvent,
}

// canonicalStageNames maps internal stage names to the names the
// processing_stages table uses.
var canonicalStageNames = map[string]string{
	StageASR:         "asr_submit",
	StagePostprocess: "post_process",
}

func canonicalStageName(stage string) string {
	if name, ok := canonicalStageNames[stage]; ok {
		return name
	}
	return stage
}

// determineErrorStage attributes a batch failure to a stage: the first stage
// recorded as failed, else the first ordered stage that never ran. With an
// empty recorder the failure happened before fetch, so fetch is charged.
func determineErrorStage(rec *metrics.StageRecorder) string {
	if stage := rec.FailedStage(stageOrder); stage != "" {
		return stage
	}
	for _, stage := range stageOrder {
		if !rec.Has(stage) {
			return stage
		}
	}
	return StageFetch
}

// buildStageRows converts recorded timings into persistable rows under
// canonical names. The status_update and publish_event stages are bookkeeping,
// not processing, and are never persisted as rows.
func buildStageRows(rec *metrics.StageRecorder, errorMessage string) []storage.StageRow {
	rows := make([]storage.StageRow, 0, len(stageOrder))
	for _, stage := range stageOrder {
		if stage == StageStatusUpdate || stage == StagePublishEvent {
			continue
		}
		res, ok := rec.Get(stage)
		if !ok {
			continue
		}
		row := storage.StageRow{
			Stage:           canonicalStageName(stage),
			DurationSeconds: res.Duration.Seconds(),
			Success:         res.Success,
		}
		if !res.Success {
			row.ErrorMessage = errorMessage
		}
		rows = append(rows, row)
	}
	return rows
}

// buildCompletionEvent assembles the downstream notification for a terminal
// batch state.
func buildCompletionEvent(batchID, userID, status string, artifacts map[string]string, recordingStartedAt, errorMessage string, now time.Time) storage.CompletionEvent {
	return storage.CompletionEvent{
		BatchID:            batchID,
		UserID:             userID,
		Status:             status,
		RecordingStartedAt: recordingStartedAt,
		ArtifactPaths:      artifacts,
		PublishedAt:        now.UTC().Format(time.RFC3339),
		ErrorMessage:       errorMessage,
	}
}

// parseBatchTimestamp extracts the recording start time embedded in a batch
// id of the form YYYYMMDDHHMMSS-GMT-<uuid>. Malformed ids degrade to an
// empty string rather than failing the batch.
func parseBatchTimestamp(batchID string) string {
	parts := strings.SplitN(batchID, "-GMT-", 2)
	if len(parts) != 2 {
		return ""
	}
	t, err := time.ParseInLocation("20060102150405", parts[0], time.UTC)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Artifact key layout under the blob store.

func rawAudioKey(userID, batchID string) string {
	return fmt.Sprintf("%s/%s/raw-audio/recording.m4a", userID, batchID)
}

func cleanedAudioKey(userID, batchID string) string {
	return fmt.Sprintf("%s/%s/cleaned-audio/cleaned.wav", userID, batchID)
}

func transcriptKey(userID, batchID string) string {
	return fmt.Sprintf("%s/%s/transcript/formatted.txt", userID, batchID)
}

func rawTranscriptKey(userID, batchID string) string {
	return fmt.Sprintf("%s/%s/transcript/raw.json", userID, batchID)
}

func emotionKey(userID, batchID string) string {
	return fmt.Sprintf("%s/%s/emotion/emotion.json", userID, batchID)
}
