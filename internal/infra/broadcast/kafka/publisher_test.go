package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"herdbook/pkg/domain"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublishAlertsWritesOneMessagePerAlert(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w, "alerts")
	at := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	alerts := []domain.Alert{
		{ID: "al1", Type: domain.AlertStolen, AnimalID: "a1", Scope: "Kiambu", Detail: "Cow COW-1 reported stolen", Timestamp: at},
		{ID: "al2", Type: domain.AlertRedZone, AnimalID: "a2", Scope: domain.ScopeAll, Timestamp: at},
	}
	if err := p.PublishAlerts(context.Background(), alerts); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	first := w.msgs[0]
	if string(first.Key) != "Kiambu" || !first.Time.Equal(at) {
		t.Fatalf("unexpected key/time %s %s", first.Key, first.Time)
	}
	if header(first, HeaderAlertType) != "STOLEN" || header(first, HeaderAnimalID) != "a1" || header(first, HeaderScope) != "Kiambu" {
		t.Fatalf("unexpected headers %+v", first.Headers)
	}
	var decoded domain.Alert
	if err := json.Unmarshal(first.Value, &decoded); err != nil || decoded.ID != "al1" {
		t.Fatalf("unexpected payload %s (%v)", first.Value, err)
	}
	if string(w.msgs[1].Key) != domain.ScopeAll {
		t.Fatalf("expected red-zone alert keyed by ALL")
	}
}

func TestPublishAlertsNoopAndErrors(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w, "alerts")
	if err := p.PublishAlerts(context.Background(), nil); err != nil || len(w.msgs) != 0 {
		t.Fatalf("empty batch must be a no-op")
	}
	w.err = errors.New("leader not available")
	err := p.PublishAlerts(context.Background(), []domain.Alert{{ID: "al1"}})
	if err == nil || !strings.Contains(err.Error(), "leader not available") || !strings.Contains(err.Error(), "alerts") {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected close to reach writer")
	}
}

func TestNewPublisher(t *testing.T) {
	if _, err := NewPublisher(Config{}); err == nil {
		t.Fatalf("expected broker requirement")
	}
	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Compression: "zstd"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Topic() != DefaultTopic {
		t.Fatalf("expected default topic, got %s", p.Topic())
	}
	writer, ok := p.writer.(*kafka.Writer)
	if !ok || writer.Compression != kafka.Zstd || writer.Topic != DefaultTopic {
		t.Fatalf("unexpected writer %+v", p.writer)
	}
	_ = p.Close()
}
