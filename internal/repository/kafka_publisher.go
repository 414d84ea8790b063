package repository

import (
	"context"
	"fmt"

	"MarketPull/internal/domain/models"
	pkgkafka "MarketPull/pkg/kafka"
	applogger "MarketPull/pkg/logger"
)

// KafkaPublisher emits confirmed observations onto a topic for downstream
// consumers. Like the warehouse mirror it is best-effort only.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

// NewKafkaPublisher wraps a producer for one topic.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string, l *applogger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, l: l}
}

func (p *KafkaPublisher) PublishFinal(ctx context.Context, rows []models.Observation) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(row.ID().String()),
			Value: row,
		})
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish final rows: %w", err)
	}
	if p.l != nil {
		p.l.Info("final rows published",
			applogger.String("topic", p.topic),
			applogger.Int("rows", len(msgs)))
	}
	return nil
}

// PublishMessage sends an arbitrary payload to the named topic. It lets the
// log collector ship aggregated error logs over the same producer.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }
