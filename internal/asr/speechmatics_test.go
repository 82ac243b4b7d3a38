package asr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speechmaticsWord(speaker, content string, start, end float64) map[string]any {
	return map[string]any{
		"type":       "word",
		"start_time": start,
		"end_time":   end,
		"alternatives": []any{
			map[string]any{
				"content":    content,
				"confidence": 0.9,
				"speaker":    speaker,
			},
		},
	}
}

func TestConvertResponse_GroupsConsecutiveWordsBySpeaker(t *testing.T) {
	raw := map[string]any{
		"results": []any{
			speechmaticsWord("S1", "Hello", 0.0, 0.4),
			speechmaticsWord("S1", "there", 0.5, 0.9),
			speechmaticsWord("S2", "Hi", 1.0, 1.2),
			speechmaticsWord("S1", "back", 1.5, 1.8),
		},
	}

	transcript := convertResponse(raw)

	require.Len(t, transcript.Segments, 3)
	assert.Equal(t, "Speaker 1", transcript.Segments[0].SpeakerLabel)
	assert.Len(t, transcript.Segments[0].Words, 2)
	assert.Equal(t, "Speaker 2", transcript.Segments[1].SpeakerLabel)
	// S1 keeps its label when it speaks again.
	assert.Equal(t, "Speaker 1", transcript.Segments[2].SpeakerLabel)
	assert.Equal(t, "back", transcript.Segments[2].Words[0].Text)
}

func TestConvertResponse_SpeakerLabelsInOrderOfFirstAppearance(t *testing.T) {
	raw := map[string]any{
		"results": []any{
			speechmaticsWord("S7", "first", 0.0, 0.4),
			speechmaticsWord("S2", "second", 1.0, 1.4),
		},
	}

	transcript := convertResponse(raw)

	require.Len(t, transcript.Segments, 2)
	assert.Equal(t, "Speaker 1", transcript.Segments[0].SpeakerLabel)
	assert.Equal(t, "Speaker 2", transcript.Segments[1].SpeakerLabel)
}

func TestConvertResponse_SkipsPunctuationAndMalformedEntries(t *testing.T) {
	raw := map[string]any{
		"results": []any{
			speechmaticsWord("S1", "Hello", 0.0, 0.4),
			map[string]any{
				"type": "punctuation",
				"alternatives": []any{
					map[string]any{"content": ".", "speaker": "S1"},
				},
			},
			map[string]any{"type": "word"}, // no alternatives
			"not even an object",
		},
	}

	transcript := convertResponse(raw)

	require.Len(t, transcript.Segments, 1)
	require.Len(t, transcript.Segments[0].Words, 1)
	assert.Equal(t, "Hello", transcript.Segments[0].Words[0].Text)
}

func TestConvertResponse_MissingSpeakerBucketedTogether(t *testing.T) {
	word := speechmaticsWord("", "orphan", 0.0, 0.4)

	transcript := convertResponse(map[string]any{"results": []any{word}})

	require.Len(t, transcript.Segments, 1)
	assert.Equal(t, "Speaker 1", transcript.Segments[0].SpeakerLabel)
}

func TestConvertResponse_EmptyResults(t *testing.T) {
	raw := map[string]any{"results": []any{}}

	transcript := convertResponse(raw)

	assert.Empty(t, transcript.Segments)
	// Raw response preserved for archival even when empty.
	assert.Equal(t, raw, transcript.RawResponse)
}

func TestNewSpeechmaticsEngine_RequiresAPIKey(t *testing.T) {
	_, err := NewSpeechmaticsEngine(ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestNewEngine_Registry(t *testing.T) {
	engine, err := NewEngine("speechmatics", ProviderConfig{APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &SpeechmaticsEngine{}, engine)

	_, err = NewEngine("whisper", ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown ASR provider: "whisper"`)
	assert.Contains(t, err.Error(), "speechmatics")
}
