// Package vad defines the voice activity detection engine interface and a
// provider registry. Model-backed engines plug in behind the same
// interface; the null engine treats the whole recording as speech.
package vad

import (
	"fmt"
	"sort"
	"strings"
)

// SpeechSegment is a contiguous run of detected speech.
type SpeechSegment struct {
	StartSample  int     `json:"start_sample"`
	EndSample    int     `json:"end_sample"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Result is the outcome of voice activity detection on one recording.
type Result struct {
	Segments              []SpeechSegment
	TotalDurationSeconds  float64
	SpeechDurationSeconds float64
	SpeechRatio           float64
	OutputPath            string
}

// Engine runs voice activity detection on a canonical WAV file, writing the
// speech-only audio into outputDir.
type Engine interface {
	Process(inputPath, outputDir string) (*Result, error)
}

var engines = map[string]func() Engine{
	"null": func() Engine { return &NullEngine{} },
}

// NewEngine creates a VAD engine by provider name, failing fast on
// unregistered names.
func NewEngine(provider string) (Engine, error) {
	create, ok := engines[provider]
	if !ok {
		available := make([]string, 0, len(engines))
		for name := range engines {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown VAD provider: %q, available: %s",
			provider, strings.Join(available, ", "))
	}
	return create(), nil
}
