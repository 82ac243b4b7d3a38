package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbui/audio-processor/internal/metrics"
	"github.com/qbui/audio-processor/internal/queue"
	"github.com/qbui/audio-processor/internal/storage"
)

type fakeTransport struct {
	messages map[string][]queue.Message
	pullErr  map[string]error
	acked    []string
	nacked   []string
	pulls    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(map[string][]queue.Message),
		pullErr:  make(map[string]error),
	}
}

func (f *fakeTransport) Pull(ctx context.Context, q string, batchSize int, visibility time.Duration) ([]queue.Message, error) {
	f.pulls = append(f.pulls, q)
	if err := f.pullErr[q]; err != nil {
		return nil, err
	}
	msgs := f.messages[q]
	f.messages[q] = nil
	return msgs, nil
}

func (f *fakeTransport) Ack(ctx context.Context, q, leaseID string) error {
	f.acked = append(f.acked, leaseID)
	return nil
}

func (f *fakeTransport) Nack(ctx context.Context, q, leaseID string) error {
	f.nacked = append(f.nacked, leaseID)
	return nil
}

type fakeStatusStore struct {
	updates   []storage.StatusUpdate
	updateErr error
}

func (f *fakeStatusStore) UpdateStatus(ctx context.Context, update storage.StatusUpdate) error {
	f.updates = append(f.updates, update)
	return f.updateErr
}

func (f *fakeStatusStore) UpdateMetrics(ctx context.Context, m metrics.BatchMetrics) error {
	return nil
}

func (f *fakeStatusStore) InsertStageRows(ctx context.Context, batchID string, rows []storage.StageRow) error {
	return nil
}

func (f *fakeStatusStore) PublishCompletionEvent(ctx context.Context, event storage.CompletionEvent) error {
	return nil
}

func jobMessage(id, batchID, userID string) queue.Message {
	body, _ := json.Marshal(map[string]string{"batch_id": batchID, "user_id": userID})
	return queue.Message{ID: id, LeaseID: "lease-" + id, Body: body}
}

func newTestConsumer(transport queue.Transport, status storage.StatusStore) *Consumer {
	return New(Config{
		Transport:     transport,
		Status:        status,
		PriorityQueue: "priority-q",
		NormalQueue:   "normal-q",
	})
}

func TestPollOnce_PriorityQueueAlwaysFirst(t *testing.T) {
	transport := newFakeTransport()
	transport.messages["priority-q"] = []queue.Message{jobMessage("p1", "batch-p", "u1")}
	transport.messages["normal-q"] = []queue.Message{jobMessage("n1", "batch-n", "u1")}

	var dispatched []string
	c := newTestConsumer(transport, &fakeStatusStore{})

	count := c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		dispatched = append(dispatched, batchID)
		return nil
	})

	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"batch-p", "batch-n"}, dispatched)
	assert.Equal(t, []string{"priority-q", "normal-q"}, transport.pulls)
}

func TestPollOnce_InvalidMessageNackedNotDispatched(t *testing.T) {
	transport := newFakeTransport()
	transport.messages["normal-q"] = []queue.Message{
		{ID: "bad", LeaseID: "lease-bad", Body: json.RawMessage(`{"user_id":"u1"}`)},
	}

	dispatched := 0
	c := newTestConsumer(transport, &fakeStatusStore{})

	c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		dispatched++
		return nil
	})

	assert.Zero(t, dispatched)
	assert.Equal(t, []string{"lease-bad"}, transport.nacked)
	assert.Empty(t, transport.acked)
}

func TestPollOnce_DispatchErrorStillAcked(t *testing.T) {
	transport := newFakeTransport()
	transport.messages["normal-q"] = []queue.Message{jobMessage("m1", "batch-1", "u1")}

	c := newTestConsumer(transport, &fakeStatusStore{})

	count := c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		return errors.New("pipeline blew up")
	})

	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"lease-m1"}, transport.acked)
	assert.Empty(t, transport.nacked)
}

func TestPollOnce_MarksProcessingBeforeDispatch(t *testing.T) {
	transport := newFakeTransport()
	transport.messages["normal-q"] = []queue.Message{jobMessage("m1", "batch-1", "u1")}
	status := &fakeStatusStore{}

	c := newTestConsumer(transport, status)

	c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		return nil
	})

	require.Len(t, status.updates, 1)
	assert.Equal(t, "batch-1", status.updates[0].BatchID)
	assert.Equal(t, "processing", status.updates[0].Status)
}

func TestPollOnce_ProcessingMarkFailureDoesNotBlockDispatch(t *testing.T) {
	transport := newFakeTransport()
	transport.messages["normal-q"] = []queue.Message{jobMessage("m1", "batch-1", "u1")}
	status := &fakeStatusStore{updateErr: errors.New("store down")}

	dispatched := 0
	c := newTestConsumer(transport, status)

	c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		dispatched++
		return nil
	})

	assert.Equal(t, 1, dispatched)
	assert.Equal(t, []string{"lease-m1"}, transport.acked)
}

func TestPollOnce_PullErrorOnPriorityStillPollsNormal(t *testing.T) {
	transport := newFakeTransport()
	transport.pullErr["priority-q"] = errors.New("queue api unavailable")
	transport.messages["normal-q"] = []queue.Message{jobMessage("n1", "batch-n", "u1")}

	var dispatched []string
	c := newTestConsumer(transport, &fakeStatusStore{})

	count := c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		dispatched = append(dispatched, batchID)
		return nil
	})

	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"batch-n"}, dispatched)
}

func TestPollOnce_EmbeddedStringBody(t *testing.T) {
	inner, _ := json.Marshal(map[string]string{"batch_id": "batch-s", "user_id": "u1"})
	embedded, _ := json.Marshal(string(inner))

	transport := newFakeTransport()
	transport.messages["normal-q"] = []queue.Message{
		{ID: "s1", LeaseID: "lease-s1", Body: embedded},
	}

	var dispatched []string
	c := newTestConsumer(transport, &fakeStatusStore{})

	c.PollOnce(context.Background(), func(ctx context.Context, batchID, userID string) error {
		dispatched = append(dispatched, batchID)
		return nil
	})

	assert.Equal(t, []string{"batch-s"}, dispatched)
	assert.Equal(t, []string{"lease-s1"}, transport.acked)
}

func TestNew_VisibilityTimeoutFloor(t *testing.T) {
	c := New(Config{VisibilityTimeout: time.Minute})
	assert.Equal(t, MinVisibilityTimeout, c.visibilityTimeout)

	c = New(Config{VisibilityTimeout: 10 * time.Minute})
	assert.Equal(t, 10*time.Minute, c.visibilityTimeout)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	c := New(Config{
		Transport:    transport,
		Status:       &fakeStatusStore{},
		NormalQueue:  "normal-q",
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(ctx context.Context, batchID, userID string) error { return nil })
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after context cancellation")
	}
}

func TestRun_StopEndsLoopAfterCurrentCycle(t *testing.T) {
	transport := newFakeTransport()
	c := New(Config{
		Transport:    transport,
		Status:       &fakeStatusStore{},
		NormalQueue:  "normal-q",
		PollInterval: time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), func(ctx context.Context, batchID, userID string) error { return nil })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after Stop()")
	}
}
