package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// CloudflareTransport pulls from Cloudflare Queues over the HTTP pull API.
// Leases come back as opaque lease ids and are acked/nacked in follow-up
// calls.
type CloudflareTransport struct {
	apiURL   string
	apiToken string
	client   *http.Client
	logger   *slog.Logger
}

// NewCloudflareTransport validates configuration and returns a transport.
func NewCloudflareTransport(cfg Config) (*CloudflareTransport, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("cloudflare transport: api url is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudflareTransport{
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}, nil
}

func (t *CloudflareTransport) Pull(ctx context.Context, queue string, batchSize int, visibility time.Duration) ([]Message, error) {
	payload := map[string]any{
		"batch_size":            batchSize,
		"visibility_timeout_ms": visibility.Milliseconds(),
	}

	var response struct {
		Result struct {
			Messages []struct {
				ID      string          `json:"id"`
				LeaseID string          `json:"lease_id"`
				Body    json.RawMessage `json:"body"`
			} `json:"messages"`
		} `json:"result"`
	}

	if err := t.post(ctx, fmt.Sprintf("/queues/%s/messages/pull", queue), payload, &response); err != nil {
		return nil, fmt.Errorf("queue pull failed for %s: %w", queue, err)
	}

	messages := make([]Message, 0, len(response.Result.Messages))
	for _, msg := range response.Result.Messages {
		if msg.ID == "" || msg.LeaseID == "" {
			t.logger.Warn("Malformed queue message structure",
				slog.String("queue", queue),
				slog.String("message_id", msg.ID),
			)
			continue
		}
		messages = append(messages, Message{ID: msg.ID, LeaseID: msg.LeaseID, Body: msg.Body})
	}
	return messages, nil
}

func (t *CloudflareTransport) Ack(ctx context.Context, queue, leaseID string) error {
	payload := map[string]any{
		"acks": []map[string]string{{"lease_id": leaseID}},
	}
	if err := t.post(ctx, fmt.Sprintf("/queues/%s/messages/ack", queue), payload, nil); err != nil {
		return fmt.Errorf("ack failed for lease %s: %w", leaseID, err)
	}
	return nil
}

func (t *CloudflareTransport) Nack(ctx context.Context, queue, leaseID string) error {
	payload := map[string]any{
		"nacks": []map[string]string{{"lease_id": leaseID}},
	}
	if err := t.post(ctx, fmt.Sprintf("/queues/%s/messages/nack", queue), payload, nil); err != nil {
		return fmt.Errorf("nack failed for lease %s: %w", leaseID, err)
	}
	return nil
}

func (t *CloudflareTransport) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("status %d: %s", resp.StatusCode, text)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
