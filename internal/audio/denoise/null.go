package denoise

import (
	"io"
	"os"
	"path/filepath"

	"github.com/qbui/audio-processor/internal/domain"
)

// NullEngine copies the input unchanged.
type NullEngine struct{}

func (e *NullEngine) Process(inputPath, outputDir string) (*Result, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, domain.NewDenoiseError("", "failed to stat input", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.NewDenoiseError("", "failed to create output directory", err)
	}
	outputPath := filepath.Join(outputDir, "denoised.wav")

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, domain.NewDenoiseError("", "failed to open input", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, domain.NewDenoiseError("", "failed to create output", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return nil, domain.NewDenoiseError("", "failed to copy audio", err)
	}
	if err := out.Close(); err != nil {
		return nil, domain.NewDenoiseError("", "failed to flush output", err)
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, domain.NewDenoiseError("", "failed to stat output", err)
	}

	return &Result{
		InputSizeBytes:  info.Size(),
		OutputSizeBytes: outInfo.Size(),
		OutputPath:      outputPath,
	}, nil
}
