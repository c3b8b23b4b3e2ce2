package nats

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/logger"
	"github.com/Strob0t/EscrowBoard/internal/port/messagequeue"
)

const testStream = "ESCROWBOARD_TEST"

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, testStream)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// testEvent returns an event whose type is unique to the running test, and
// the board subject it belongs on.
func testEvent(t *testing.T) (event.Event, string) {
	t.Helper()
	typ := event.Type("test." + strings.ReplaceAll(t.Name(), "/", "_"))
	ev, err := event.New(typ, "logo", "client-1", event.TaskRemoved{Client: "client-1"}, time.Now())
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev, messagequeue.SubjectFor(typ)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	ev, subject := testEvent(t)

	var (
		mu       sync.Mutex
		received *event.Event
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got event.Event
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, mustMarshal(t, ev)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("handler was not called")
	}
	if received.ID != ev.ID {
		t.Errorf("got event %q, want %q", received.ID, ev.ID)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	ev, subject := testEvent(t)

	const wantReqID = "req-abc-123"

	got := make(chan string, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		select {
		case got <- logger.RequestID(ctx):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, mustMarshal(t, ev)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != wantReqID {
			t.Errorf("request ID = %q, want %q", id, wantReqID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// subscribeDLQ returns a channel receiving messages moved to subject's DLQ.
func subscribeDLQ(t *testing.T, q *Queue, subject string) <-chan jetstream.Msg {
	t.Helper()
	consumer, err := q.js.CreateOrUpdateConsumer(context.Background(), q.stream, jetstream.ConsumerConfig{
		FilterSubject: dlqSubject(subject),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create dlq consumer: %v", err)
	}
	out := make(chan jetstream.Msg, 1)
	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		_ = msg.Ack()
		select {
		case out <- msg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("consume dlq: %v", err)
	}
	t.Cleanup(cons.Stop)
	return out
}

func TestQueue_InvalidMessageGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	_, subject := testEvent(t)
	dlq := subscribeDLQ(t, q, subject)

	called := make(chan struct{}, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		called <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{"type":"task.created"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-dlq:
		if msg.Headers().Get("Dlq-Reason") == "" {
			t.Error("expected a DLQ reason header")
		}
	case <-called:
		t.Fatal("handler must not see a message the validator rejects")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_ExhaustedRetriesGoToDLQ(t *testing.T) {
	q := testConnect(t)
	ev, subject := testEvent(t)
	dlq := subscribeDLQ(t, q, subject)

	var (
		mu    sync.Mutex
		calls int
	)
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return context.DeadlineExceeded
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, mustMarshal(t, ev)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-dlq:
		if got := retryCount(msg.Headers()); got != maxRetries {
			t.Errorf("retry count = %d, want %d", got, maxRetries)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != maxRetries+1 {
		t.Errorf("handler calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestEventPublisher_DeduplicatesByEventID(t *testing.T) {
	q := testConnect(t)
	ev, subject := testEvent(t)
	pub := NewEventPublisher(q)

	got := make(chan string, 4)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var e event.Event
		if err := json.Unmarshal(d, &e); err != nil {
			return err
		}
		got <- e.ID
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	for range 2 {
		if err := pub.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	select {
	case id := <-got:
		if id != ev.ID {
			t.Fatalf("got %q, want %q", id, ev.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case id := <-got:
		t.Fatalf("duplicate delivery of %q", id)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)

	kv, err := q.KeyValue(context.Background(), "ESCROWBOARD_TEST_KV", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	if _, err := kv.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "v" {
		t.Errorf("value = %q, want v", entry.Value())
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}
}

func TestDLQSubjectLeavesBoardNamespace(t *testing.T) {
	got := dlqSubject("board.task.created")
	if got != "dlq.board.task.created" {
		t.Fatalf("dlqSubject = %q", got)
	}
	if strings.HasPrefix(got, messagequeue.SubjectPrefix+".") {
		t.Fatal("dead letters must not match board event subscriptions")
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"", 0},
		{"2", 2},
		{"garbage", 0},
	}
	for _, tt := range tests {
		h := nats.Header{}
		if tt.header != "" {
			h.Set(headerRetryCount, tt.header)
		}
		if got := retryCount(h); got != tt.want {
			t.Errorf("retryCount(%q) = %d, want %d", tt.header, got, tt.want)
		}
	}
}

func TestNewMsgCarriesRequestID(t *testing.T) {
	msg := newMsg(logger.WithRequestID(context.Background(), "rid-1"), "board.task.created", []byte(`{}`))
	if got := msg.Header.Get(headerRequestID); got != "rid-1" {
		t.Fatalf("request ID header = %q, want rid-1", got)
	}
	if plain := newMsg(context.Background(), "board.task.created", nil); plain.Header.Get(headerRequestID) != "" {
		t.Fatal("no header expected without a request ID")
	}
}
