package consumer

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority values accepted on a job descriptor.
const (
	PriorityImmediate = "immediate"
	PriorityNormal    = "normal"
)

// Job is a validated processing job deserialized from a queue message.
// It exists only between pull and dispatch.
type Job struct {
	BatchID    string `json:"batch_id"`
	UserID     string `json:"user_id"`
	Priority   string `json:"priority"`
	EnqueuedAt string `json:"enqueued_at"`
}

// ParseJob normalizes and validates a raw message body. Producers send the
// body either as a native JSON object or as an embedded JSON string; both
// forms are accepted.
func ParseJob(body json.RawMessage) (*Job, error) {
	// Unwrap a string-embedded body before decoding.
	var embedded string
	if err := json.Unmarshal(body, &embedded); err == nil {
		body = []byte(embedded)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("message body is not a JSON object: %w", err)
	}

	if job.BatchID == "" {
		return nil, fmt.Errorf("missing or invalid 'batch_id' in message")
	}
	if job.UserID == "" {
		return nil, fmt.Errorf("missing or invalid 'user_id' in message")
	}

	if job.Priority == "" {
		job.Priority = PriorityNormal
	}
	if job.Priority != PriorityImmediate && job.Priority != PriorityNormal {
		return nil, fmt.Errorf("invalid 'priority': %q, must be %q or %q",
			job.Priority, PriorityImmediate, PriorityNormal)
	}

	if job.EnqueuedAt != "" {
		if _, err := parseISO8601(job.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("invalid 'enqueued_at' ISO 8601 format: %q", job.EnqueuedAt)
		}
	}

	return &job, nil
}

// parseISO8601 accepts RFC 3339 and the offset-less form some producers
// send.
func parseISO8601(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
