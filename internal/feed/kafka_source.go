package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// KafkaSource reads mission events off the change-feed topic. Events
// are keyed by mission id, which is what gives the per-mission ordering
// the rest of the system relies on.
type KafkaSource struct {
	reader *kafka.Reader
	log    *slog.Logger
}

func NewKafkaSource(brokers []string, topic, group string, log *slog.Logger) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: r, log: log}
}

func (s *KafkaSource) Run(ctx context.Context, deliver func(models.MissionEvent)) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		var ev models.MissionEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			s.log.Warn("invalid mission event", "error", err)
			continue
		}
		deliver(ev)
	}
}

func (s *KafkaSource) Close() error { return s.reader.Close() }

// Emitter publishes mission change events onto the feed topic whenever
// courierd mutates a mission row.
type Emitter struct {
	writer *kafka.Writer
}

func NewEmitter(brokers []string, topic string) *Emitter {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Emitter{writer: w}
}

func (e *Emitter) Emit(ctx context.Context, ev models.MissionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Mission.ID), Value: b})
}

func (e *Emitter) Close() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
