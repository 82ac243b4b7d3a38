// Package audio converts recordings to the canonical 16kHz mono 16-bit PCM
// WAV format via ffmpeg and provides WAV header utilities.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/qbui/audio-processor/internal/domain"
)

const (
	ffprobeTimeout = 10 * time.Second
	ffmpegTimeout  = 2 * time.Minute
)

// TranscodeResult describes a successful transcode.
type TranscodeResult struct {
	InputPath       string
	OutputPath      string
	InputSizeBytes  int64
	OutputSizeBytes int64
	DurationSeconds float64
}

// Transcoder converts an input recording into canonical WAV. Transcode
// failures are deterministic and never retried.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputDir string) (*TranscodeResult, error)
}

// FFmpegTranscoder shells out to ffmpeg, with an ffprobe pre-check to fail
// fast on corrupt input instead of waiting out the full ffmpeg timeout.
type FFmpegTranscoder struct{}

// NewFFmpegTranscoder returns a Transcoder backed by the ffmpeg binary on PATH.
func NewFFmpegTranscoder() *FFmpegTranscoder {
	return &FFmpegTranscoder{}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputDir string) (*TranscodeResult, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, domain.NewTranscodeError("", fmt.Sprintf("input file does not exist: %s", inputPath), err)
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, domain.NewTranscodeError("", "ffmpeg binary not found on PATH", err)
	}

	if err := probeInput(ctx, inputPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.NewTranscodeError("", "failed to create output directory", err)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, stem+".wav")

	runCtx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, ffmpegPath,
		"-y",
		"-i", inputPath,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-sample_fmt", "s16",
		"-f", "wav",
		outputPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, domain.NewTranscodeError("",
				fmt.Sprintf("ffmpeg transcode timed out after %s", ffmpegTimeout), err)
		}
		return nil, domain.NewTranscodeError("",
			fmt.Sprintf("ffmpeg transcode failed: %s", truncate(stderr.String(), 500)), err)
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, domain.NewTranscodeError("",
			fmt.Sprintf("ffmpeg produced no output file: %s", outputPath), err)
	}

	duration, err := WAVDuration(outputPath)
	if err != nil {
		return nil, domain.NewTranscodeError("", "failed to read output WAV duration", err)
	}

	return &TranscodeResult{
		InputPath:       inputPath,
		OutputPath:      outputPath,
		InputSizeBytes:  info.Size(),
		OutputSizeBytes: outInfo.Size(),
		DurationSeconds: duration,
	}, nil
}

// probeInput validates the file with ffprobe when available. Absence of
// ffprobe is not an error; ffmpeg becomes the arbiter.
func probeInput(ctx context.Context, inputPath string) error {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, ffprobeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobePath, "-v", "error", "-show_format", inputPath)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return domain.NewTranscodeError("",
				fmt.Sprintf("ffprobe timed out after %s, file may be corrupt", ffprobeTimeout), err)
		}
		return domain.NewTranscodeError("",
			fmt.Sprintf("audio file is corrupt or unreadable: %s", truncate(stderr.String(), 200)), err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
