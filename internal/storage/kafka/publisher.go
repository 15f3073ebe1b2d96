package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ledgerScope/internal/model"
	"ledgerScope/internal/storage"
)

const defaultTopicPrefix = "ledgerscope"

// PublisherConfig selects the brokers and the topic prefix. The prefix defaults to "ledgerscope".
type PublisherConfig struct {
	Brokers     []string
	TopicPrefix string
}

// Publisher sends decoded events as JSON, one topic per group.
type Publisher struct {
	writer *kafka.Writer
	prefix string
}

// NewPublisher builds a Publisher. Topics are created on first write.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           500 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: writer, prefix: cfg.TopicPrefix}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := buildMessages(p.Topic(key), events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Topic returns the topic a group is published to.
func (p *Publisher) Topic(key string) string {
	return p.prefix + "." + storage.SafeName(key)
}

// Messages are keyed by contract so events of one contract keep their order within a partition.
func buildMessages(topic string, events []model.DecodedEvent) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", event.ID(), err)
		}
		messages = append(messages, kafka.Message{
			Topic: topic,
			Key:   []byte(model.NormalizeAddress(event.ContractAddress)),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(event.ID())},
				{Key: "event_name", Value: []byte(event.EventName)},
			},
		})
	}
	return messages, nil
}
