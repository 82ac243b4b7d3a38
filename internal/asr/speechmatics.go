package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/qbui/audio-processor/internal/domain"
)

const (
	speechmaticsBaseURL = "https://asr.api.speechmatics.com/v2"
	pollInterval        = 5 * time.Second
	defaultJobTimeout   = 10 * time.Minute
)

// SpeechmaticsEngine drives the Speechmatics Batch API v2 with speaker
// diarization: submit, poll until done, fetch the json-v2 transcript, and
// convert to the internal Transcript model.
type SpeechmaticsEngine struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewSpeechmaticsEngine validates configuration and returns an engine.
func NewSpeechmaticsEngine(cfg ProviderConfig) (*SpeechmaticsEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("speechmatics: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = speechmaticsBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SpeechmaticsEngine{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// Transcribe submits the audio file, waits for completion, and returns the
// converted transcript.
func (e *SpeechmaticsEngine) Transcribe(ctx context.Context, audioPath string, meta Metadata) (*Transcript, error) {
	jobID, err := e.submitJob(ctx, audioPath, meta)
	if err != nil {
		return nil, err
	}

	if err := e.pollUntilComplete(ctx, jobID, meta.BatchID); err != nil {
		return nil, err
	}

	raw, err := e.fetchTranscript(ctx, jobID, meta.BatchID)
	if err != nil {
		return nil, err
	}

	transcript := convertResponse(raw)
	transcript.JobID = jobID
	return transcript, nil
}

func (e *SpeechmaticsEngine) submitJob(ctx context.Context, audioPath string, meta Metadata) (string, error) {
	language := meta.Language
	if language == "" {
		language = "en"
	}
	jobConfig := map[string]any{
		"type": "transcription",
		"transcription_config": map[string]any{
			"language":    language,
			"diarization": "speaker",
		},
	}
	configJSON, err := json.Marshal(jobConfig)
	if err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to encode job config", err)
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to open audio file", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("data_file", "audio.wav")
	if err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to build multipart form", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to read audio file", err)
	}
	if err := writer.WriteField("config", string(configJSON)); err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to write config field", err)
	}
	if err := writer.Close(); err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to finalize multipart form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/jobs/", &body)
	if err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to build submit request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", domain.NewASRError(meta.BatchID, "job submission failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.NewASRError(meta.BatchID,
			fmt.Sprintf("job submission failed with status %d: %s", resp.StatusCode, text), nil)
	}

	var submitted struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", domain.NewASRError(meta.BatchID, "failed to decode submission response", err)
	}
	if submitted.ID == "" {
		return "", domain.NewASRError(meta.BatchID, "no job ID in submission response", nil)
	}

	e.logger.Info("Submitted Speechmatics job",
		slog.String("job_id", submitted.ID),
		slog.String("batch_id", meta.BatchID),
	)
	return submitted.ID, nil
}

func (e *SpeechmaticsEngine) pollUntilComplete(ctx context.Context, jobID, batchID string) error {
	deadline := time.Now().Add(e.timeout)

	for time.Now().Before(deadline) {
		status, transient, err := e.jobStatus(ctx, jobID, batchID)
		if err != nil {
			return err
		}

		if !transient {
			switch status {
			case "done":
				e.logger.Info("Speechmatics job completed", slog.String("job_id", jobID))
				return nil
			case "rejected", "deleted":
				return domain.NewASRError(batchID,
					fmt.Sprintf("job %s was %s", jobID, status), nil)
			}
		}

		select {
		case <-ctx.Done():
			return domain.NewASRError(batchID, "transcription canceled", ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	return domain.NewASRError(batchID,
		fmt.Sprintf("job %s timed out after %s", jobID, e.timeout), nil)
}

// jobStatus returns the job status, or transient=true when the poll hit a
// rate limit and should simply be repeated.
func (e *SpeechmaticsEngine) jobStatus(ctx context.Context, jobID, batchID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return "", false, domain.NewASRError(batchID, "failed to build poll request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", false, domain.NewASRError(batchID, "failed to poll job status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return "", true, nil
	}
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, domain.NewASRError(batchID,
			fmt.Sprintf("poll failed with status %d: %s", resp.StatusCode, text), nil)
	}

	var body struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, domain.NewASRError(batchID, "failed to decode poll response", err)
	}

	return body.Job.Status, false, nil
}

func (e *SpeechmaticsEngine) fetchTranscript(ctx context.Context, jobID, batchID string) (map[string]any, error) {
	url := fmt.Sprintf("%s/jobs/%s/transcript?format=json-v2", e.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewASRError(batchID, "failed to build transcript request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.NewASRError(batchID, "failed to fetch transcript", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.NewASRError(batchID,
			fmt.Sprintf("transcript fetch failed with status %d: %s", resp.StatusCode, text), nil)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, domain.NewASRError(batchID, "failed to decode transcript response", err)
	}
	return raw, nil
}

// convertResponse groups consecutive words by speaker into segments,
// mapping raw diarization ids (S1, S2, ...) to "Speaker N" labels in order
// of first appearance. Punctuation and non-word results are skipped.
func convertResponse(raw map[string]any) *Transcript {
	results, _ := raw["results"].([]any)
	if len(results) == 0 {
		return &Transcript{Segments: nil, RawResponse: raw}
	}

	speakerMap := make(map[string]string)
	var segments []Segment
	currentSpeaker := ""
	var currentWords []Word

	flush := func() {
		if len(currentWords) > 0 && currentSpeaker != "" {
			segments = append(segments, Segment{SpeakerLabel: currentSpeaker, Words: currentWords})
		}
	}

	for _, item := range results {
		result, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if result["type"] != "word" {
			continue
		}
		alternatives, _ := result["alternatives"].([]any)
		if len(alternatives) == 0 {
			continue
		}
		alt, ok := alternatives[0].(map[string]any)
		if !ok {
			continue
		}

		rawSpeaker, _ := alt["speaker"].(string)
		if rawSpeaker == "" {
			rawSpeaker = "UU"
		}
		label, ok := speakerMap[rawSpeaker]
		if !ok {
			label = fmt.Sprintf("Speaker %d", len(speakerMap)+1)
			speakerMap[rawSpeaker] = label
		}

		text, _ := alt["content"].(string)
		start, _ := result["start_time"].(float64)
		end, _ := result["end_time"].(float64)
		confidence, _ := alt["confidence"].(float64)
		word := Word{Text: text, StartTime: start, EndTime: end, Confidence: confidence}

		if label != currentSpeaker {
			flush()
			currentSpeaker = label
			currentWords = []Word{word}
		} else {
			currentWords = append(currentWords, word)
		}
	}
	flush()

	return &Transcript{Segments: segments, RawResponse: raw}
}
