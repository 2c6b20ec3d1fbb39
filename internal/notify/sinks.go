package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// LogSink writes events to the structured log.
type LogSink struct {
	Log zerolog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(_ context.Context, ev Event) error {
	e := s.Log.Info().Str("kind", string(ev.Kind)).Str("owner", ev.OwnerID).Str("task", ev.TaskID).Str("title", ev.Title)
	if ev.Previous != nil {
		e = e.Time("old_start", ev.Previous.Start).Time("old_end", ev.Previous.End)
	}
	if ev.Current != nil {
		e = e.Time("start", ev.Current.Start).Time("end", ev.Current.End)
	}
	if len(ev.DependentIDs) > 0 {
		e = e.Strs("dependents", ev.DependentIDs)
	}
	e.Msg("notification")
	return nil
}

// Producer defines the interface for producing messages to Kafka.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

const headerKind = "kind"

// KafkaSink publishes events as JSON records keyed by owner, so each owner's
// events stay ordered within one partition.
type KafkaSink struct {
	client Producer
	topic  string
}

func NewKafkaSink(client Producer, topic string) *KafkaSink {
	return &KafkaSink{client: client, topic: topic}
}

func (*KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, ev Event) error {
	rec, err := eventToRec(ev, s.topic)
	if err != nil {
		return err
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func eventToRec(ev Event, topic string) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &kgo.Record{
		Topic:   topic,
		Key:     []byte(ev.OwnerID),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: headerKind, Value: []byte(ev.Kind)}},
	}, nil
}

// NewKafkaClient builds a producer client for the given brokers and default topic.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}
