// Package asr defines the speech recognition engine interface, the
// transcript data model, and transcript post-processing.
package asr

import "context"

// Word is a single recognized word with timing and confidence.
type Word struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

// Segment is a run of consecutive words from a single speaker.
type Segment struct {
	SpeakerLabel string `json:"speaker_label"`
	Words        []Word `json:"words"`
}

// Transcript is the complete speaker-labeled transcription of a recording,
// along with the raw vendor response for archival.
type Transcript struct {
	Segments    []Segment      `json:"segments"`
	JobID       string         `json:"job_id,omitempty"`
	RawResponse map[string]any `json:"raw_response"`
}

// Metadata carries batch context passed through to the engine.
type Metadata struct {
	BatchID  string
	Language string
}

// Engine transcribes a prepared 16kHz mono 16-bit PCM WAV file.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, meta Metadata) (*Transcript, error)
}
