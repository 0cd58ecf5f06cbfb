package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Publisher mirrors presence updates onto a stream so fleet-side
// consumers (heatmaps, supervision) see them without polling Redis.
type Publisher interface {
	PublishLocation(ctx context.Context, p models.Presence) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaPublisher{writer: w}
}

// PublishLocation keys by driver id so one driver's samples stay ordered.
func (k *KafkaPublisher) PublishLocation(ctx context.Context, p models.Presence) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(p.DriverID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
