package pipeline

import "github.com/qbui/audio-processor/internal/metrics"

// Terminal batch statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Artifact kinds recorded in the artifact path map.
const (
	ArtifactRawAudio      = "raw_audio"
	ArtifactCleanedAudio  = "cleaned_audio"
	ArtifactTranscript    = "transcript"
	ArtifactRawTranscript = "raw_transcript"
	ArtifactEmotion       = "emotion"
)

// ProcessingError attributes a batch failure to a pipeline stage.
type ProcessingError struct {
	Stage         string `json:"stage"`
	Message       string `json:"message"`
	ExceptionType string `json:"exception_type"`
}

// Result is the terminal outcome of one ProcessBatch invocation. Exactly
// one Result exists per batch run; ProcessBatch never propagates an error
// to its caller.
type Result struct {
	Status        string               `json:"status"`
	BatchID       string               `json:"batch_id"`
	ArtifactPaths map[string]string    `json:"artifact_paths"`
	Metrics       metrics.BatchMetrics `json:"metrics"`
	Error         *ProcessingError     `json:"error,omitempty"`
}
