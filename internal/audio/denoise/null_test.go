package denoise

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullEngine_CopiesInputUnchanged(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "speech.wav")
	payload := []byte("pretend this is speech audio")
	require.NoError(t, os.WriteFile(inputPath, payload, 0o644))
	outputDir := t.TempDir()

	result, err := (&NullEngine{}).Process(inputPath, outputDir)

	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), result.InputSizeBytes)
	assert.Equal(t, int64(len(payload)), result.OutputSizeBytes)
	assert.Equal(t, filepath.Join(outputDir, "denoised.wav"), result.OutputPath)

	out, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestNullEngine_MissingInput(t *testing.T) {
	_, err := (&NullEngine{}).Process(filepath.Join(t.TempDir(), "missing.wav"), t.TempDir())
	require.Error(t, err)
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine("null")
	require.NoError(t, err)
	assert.IsType(t, &NullEngine{}, engine)

	_, err = NewEngine("rnnoise")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown denoise provider: "rnnoise"`)
}
