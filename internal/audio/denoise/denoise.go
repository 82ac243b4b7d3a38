// Package denoise defines the noise suppression engine interface and a
// provider registry. The null engine is the production default: denoising
// measurably degraded recognition accuracy, and the ASR vendor applies its
// own audio filtering.
package denoise

import (
	"fmt"
	"sort"
	"strings"
)

// Result is the outcome of noise suppression on one recording.
type Result struct {
	InputSizeBytes  int64
	OutputSizeBytes int64
	OutputPath      string
}

// Engine runs noise suppression on a canonical WAV file, writing the
// cleaned audio into outputDir.
type Engine interface {
	Process(inputPath, outputDir string) (*Result, error)
}

var engines = map[string]func() Engine{
	"null": func() Engine { return &NullEngine{} },
}

// NewEngine creates a denoise engine by provider name, failing fast on
// unregistered names.
func NewEngine(provider string) (Engine, error) {
	create, ok := engines[provider]
	if !ok {
		available := make([]string, 0, len(engines))
		for name := range engines {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown denoise provider: %q, available: %s",
			provider, strings.Join(available, ", "))
	}
	return create(), nil
}
