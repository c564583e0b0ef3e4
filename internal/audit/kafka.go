package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"sabha/internal/platform/config"
)

// KafkaSink publishes audit events to a Kafka topic for downstream
// compliance and SIEM consumers. Events are keyed by election so one
// election's trail stays ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer and ensures the audit topic exists.
func NewKafkaSink(ctx context.Context, cfg config.KafkaConfig) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 3, 1, nil, cfg.AuditTopic); err != nil {
		// Topic may already exist; surface only genuine failures.
		details, derr := adm.ListTopics(ctx, cfg.AuditTopic)
		if derr != nil || !details.Has(cfg.AuditTopic) {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	return &KafkaSink{client: client, topic: cfg.AuditTopic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ElectionID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
