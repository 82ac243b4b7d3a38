package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qbui/audio-processor/internal/asr"
	"github.com/qbui/audio-processor/internal/domain"
)

const googleNLBaseURL = "https://language.googleapis.com/v2"

// GoogleNLEngine analyzes each segment's text through the Google Cloud
// Natural Language sentiment API, producing a score (-1.0 to 1.0) and
// magnitude (0.0+) per segment.
type GoogleNLEngine struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGoogleNLEngine returns an engine calling the production NL endpoint.
func NewGoogleNLEngine(apiKey string) (*GoogleNLEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google-cloud-nl: api key is required")
	}
	return &GoogleNLEngine{
		apiKey:  apiKey,
		baseURL: googleNLBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *GoogleNLEngine) ProviderName() string    { return "google-cloud-nl" }
func (e *GoogleNLEngine) ProviderVersion() string { return "v2" }

func (e *GoogleNLEngine) Analyze(ctx context.Context, segments []asr.Segment, audioPath string) (*Result, error) {
	analyzedAt := time.Now().UTC().Format(time.RFC3339)
	results := make([]SegmentResult, 0, len(segments))

	for index, segment := range segments {
		words := make([]string, 0, len(segment.Words))
		for _, w := range segment.Words {
			words = append(words, w.Text)
		}
		text := strings.Join(words, " ")

		var startSeconds, endSeconds float64
		if len(segment.Words) > 0 {
			startSeconds = segment.Words[0].StartTime
			endSeconds = segment.Words[len(segment.Words)-1].EndTime
		}

		score, magnitude, err := e.analyzeText(ctx, text)
		if err != nil {
			return nil, err
		}

		results = append(results, SegmentResult{
			SegmentIndex: index,
			StartSeconds: startSeconds,
			EndSeconds:   endSeconds,
			Speaker:      segment.SpeakerLabel,
			Text:         text,
			Analysis:     map[string]any{"score": score, "magnitude": magnitude},
		})
	}

	return &Result{
		Provider:        e.ProviderName(),
		ProviderVersion: e.ProviderVersion(),
		AnalyzedAt:      analyzedAt,
		Segments:        results,
	}, nil
}

func (e *GoogleNLEngine) analyzeText(ctx context.Context, text string) (float64, float64, error) {
	payload := map[string]any{
		"document": map[string]any{
			"content": text,
			"type":    "PLAIN_TEXT",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, domain.NewEmotionError("", "failed to encode sentiment request", err)
	}

	url := fmt.Sprintf("%s/documents:analyzeSentiment?key=%s", e.baseURL, e.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, domain.NewEmotionError("", "failed to build sentiment request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, 0, domain.NewEmotionError("", "sentiment analysis request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, 0, domain.NewEmotionError("",
			fmt.Sprintf("sentiment analysis failed with status %d: %s", resp.StatusCode, text), nil)
	}

	var decoded struct {
		DocumentSentiment struct {
			Score     float64 `json:"score"`
			Magnitude float64 `json:"magnitude"`
		} `json:"documentSentiment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, 0, domain.NewEmotionError("", "failed to decode sentiment response", err)
	}

	return decoded.DocumentSentiment.Score, decoded.DocumentSentiment.Magnitude, nil
}
