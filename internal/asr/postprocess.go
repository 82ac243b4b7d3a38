package asr

import (
	"fmt"
	"strings"
)

// MarkerIntervalSeconds is the spacing between [MM:SS] timestamp markers.
const MarkerIntervalSeconds = 15

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// FormatTranscript converts a transcript into line-oriented text with
// [MM:SS] markers every 15 seconds and speaker labels at turn boundaries.
//
// A marker is emitted by the first word whose start time crosses the next
// 15-second boundary, snapped down to the latest aligned boundary at or
// before that word. Speaker changes insert a blank line and restate the
// label once; words within a turn append to the current line separated by
// single spaces. An empty transcript formats to the empty string.
func FormatTranscript(t *Transcript) string {
	if t == nil || len(t.Segments) == 0 {
		return ""
	}

	var lines []string
	nextMarker := 0.0
	prevSpeaker := ""

	for _, segment := range t.Segments {
		if len(segment.Words) == 0 {
			continue
		}

		if prevSpeaker != "" && segment.SpeakerLabel != prevSpeaker {
			lines = append(lines, "")
		}
		prevSpeaker = segment.SpeakerLabel
		labelEmitted := false

		for _, word := range segment.Words {
			var parts []string

			if word.StartTime >= nextMarker {
				boundary := float64(int(word.StartTime)/MarkerIntervalSeconds) * MarkerIntervalSeconds
				parts = append(parts, formatTimestamp(boundary))
				nextMarker = boundary + MarkerIntervalSeconds
			}

			if !labelEmitted {
				parts = append(parts, segment.SpeakerLabel+":")
				labelEmitted = true
			}

			parts = append(parts, word.Text)

			if len(parts) > 1 {
				// Marker and/or speaker label prefixes a new line.
				lines = append(lines, strings.Join(parts, " "))
			} else if len(lines) > 0 && !strings.HasSuffix(lines[len(lines)-1], ":") {
				lines[len(lines)-1] += " " + word.Text
			} else {
				lines = append(lines, word.Text)
			}
		}
	}

	return strings.Join(lines, "\n")
}
