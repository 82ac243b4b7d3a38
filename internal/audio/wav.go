package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Canonical audio format produced by the transcoder and expected by the
// downstream VAD/denoise/ASR engines.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2 // 16-bit PCM
)

// WAVDuration reads the duration in seconds of a PCM WAV file from its
// RIFF header and data chunk size.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := f.Read(header); err != nil {
		return 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	var sampleRate uint32
	var blockAlign uint16

	// Walk chunks until the data chunk; fmt must precede it.
	for {
		chunk := make([]byte, 8)
		if _, err := f.Read(chunk); err != nil {
			return 0, fmt.Errorf("failed to read chunk header: %w", err)
		}
		chunkID := string(chunk[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunk[4:8])

		switch chunkID {
		case "fmt ":
			fmtData := make([]byte, chunkSize)
			if _, err := f.Read(fmtData); err != nil {
				return 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			sampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			blockAlign = binary.LittleEndian.Uint16(fmtData[12:14])
		case "data":
			if sampleRate == 0 || blockAlign == 0 {
				return 0, errors.New("data chunk before fmt chunk")
			}
			frames := chunkSize / uint32(blockAlign)
			return float64(frames) / float64(sampleRate), nil
		default:
			if _, err := f.Seek(int64(chunkSize), 1); err != nil {
				return 0, fmt.Errorf("failed to skip chunk %q: %w", chunkID, err)
			}
		}
	}
}
