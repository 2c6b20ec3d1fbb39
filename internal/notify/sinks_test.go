package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fentz26/planwise/internal/models"
)

// mockClient mocks kgo.Client for testing
type mockClient struct {
	produceErr   error
	lastRecord   *kgo.Record
	produceCalls int
}

func (m *mockClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	m.produceCalls++
	if len(rs) > 0 {
		m.lastRecord = rs[0]
	}
	if m.produceErr != nil {
		return kgo.ProduceResults{{Err: m.produceErr}}
	}
	return kgo.ProduceResults{}
}

func TestKafkaSinkSend(t *testing.T) {
	mock := &mockClient{}
	sink := NewKafkaSink(mock, "planwise.events")

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	ev := Event{
		Kind:    EventRescheduled,
		OwnerID: "owner-1",
		TaskID:  "t-1",
		Current: &models.Placement{Start: start, End: start.Add(time.Hour)},
		At:      start,
	}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if mock.produceCalls != 1 {
		t.Fatalf("expected 1 produce call, got: %d", mock.produceCalls)
	}

	rec := mock.lastRecord
	if string(rec.Key) != "owner-1" {
		t.Errorf("expected key owner-1, got %s", string(rec.Key))
	}
	if rec.Topic != "planwise.events" {
		t.Errorf("expected topic planwise.events, got %s", rec.Topic)
	}
	if len(rec.Headers) != 1 || string(rec.Headers[0].Value) != string(EventRescheduled) {
		t.Errorf("expected kind header, got %+v", rec.Headers)
	}

	var decoded Event
	if err := json.Unmarshal(rec.Value, &decoded); err != nil {
		t.Fatalf("expected JSON payload: %v", err)
	}
	if decoded.TaskID != "t-1" || !decoded.Current.Start.Equal(start) {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaSinkError(t *testing.T) {
	mock := &mockClient{produceErr: errors.New("broker down")}
	sink := NewKafkaSink(mock, "")

	err := sink.Send(context.Background(), Event{Kind: EventRescheduled})
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: zerolog.New(&buf)}
	if err := sink.Send(context.Background(), Event{Kind: EventDependencyCompleted, TaskID: "t-1", DependentIDs: []string{"t-2"}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind":"task.dependency_completed"`) || !strings.Contains(out, `"dependents":["t-2"]`) {
		t.Errorf("unexpected log line: %s", out)
	}
}
