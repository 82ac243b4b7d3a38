package vad

import (
	"io"
	"os"
	"path/filepath"

	"github.com/qbui/audio-processor/internal/audio"
	"github.com/qbui/audio-processor/internal/domain"
)

// NullEngine is a passthrough VAD: the entire recording is reported as one
// speech segment and the audio is copied unchanged.
type NullEngine struct{}

func (e *NullEngine) Process(inputPath, outputDir string) (*Result, error) {
	duration, err := audio.WAVDuration(inputPath)
	if err != nil {
		return nil, domain.NewVADError("", "failed to read input WAV", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.NewVADError("", "failed to create output directory", err)
	}
	outputPath := filepath.Join(outputDir, "speech.wav")
	if err := copyFile(inputPath, outputPath); err != nil {
		return nil, domain.NewVADError("", "failed to copy audio", err)
	}

	totalSamples := int(duration * audio.SampleRate)
	segment := SpeechSegment{
		StartSample:  0,
		EndSample:    totalSamples,
		StartSeconds: 0,
		EndSeconds:   duration,
	}

	return &Result{
		Segments:              []SpeechSegment{segment},
		TotalDurationSeconds:  duration,
		SpeechDurationSeconds: duration,
		SpeechRatio:           1.0,
		OutputPath:            outputPath,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
