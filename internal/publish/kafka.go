// Package publish hands accepted records to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"debtor-import/internal/config"
	"debtor-import/internal/logger"
	"debtor-import/internal/model"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type Publisher interface {
	PublishAccepted(ctx context.Context, events []model.AcceptedRecordEvent) error
	Close() error
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

func NewKafkaPublisher(cfg *config.Config) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.Kafka.ClientID
	if sc.ClientID == "" {
		sc.ClientID = cfg.App.Name
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherFrom(producer, cfg.Kafka.Topic), nil
}

func NewKafkaPublisherFrom(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      logger.Get(),
	}
}

// PublishAccepted sends one message per record, keyed by file and line so
// a replayed file overwrites rather than duplicates in compacted topics.
func (p *KafkaPublisher) PublishAccepted(ctx context.Context, events []model.AcceptedRecordEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("line %d: %w", e.LineNumber, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d:%d", e.FileID, e.LineNumber)),
			Value: sarama.ByteEncoder(value),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to publish %d records: %w", len(msgs), err)
	}

	p.log.Debug().Int("count", len(msgs)).Str("topic", p.topic).Msg("Published accepted records")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops events; used when kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishAccepted(context.Context, []model.AcceptedRecordEvent) error { return nil }
func (NopPublisher) Close() error                                                      { return nil }

func New(cfg *config.Config) (Publisher, error) {
	if !cfg.Kafka.Enabled {
		return NopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg)
}
