package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gw-lending/internal/storages"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// messageWriter часть kafka.Writer, нужная producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer отправляет события операций в Kafka
type Producer struct {
	writer    messageWriter
	threshold decimal.Decimal
	logger    *logrus.Logger
}

// NewProducer создает новый Kafka producer. Операции с суммой в
// единицах залога не меньше threshold помечаются как крупные.
func NewProducer(brokers []string, topic string, threshold decimal.Decimal, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Errorf("Failed to deliver %d messages to Kafka: %v", len(messages), err)
			}
		},
	}

	logger.Infof("Kafka producer initialized for topic: %s", topic)
	return newProducer(writer, threshold, logger)
}

func newProducer(writer messageWriter, threshold decimal.Decimal, logger *logrus.Logger) *Producer {
	return &Producer{
		writer:    writer,
		threshold: threshold,
		logger:    logger,
	}
}

// IsLarge сумма не меньше порога
func (p *Producer) IsLarge(event storages.OperationEvent) bool {
	if p.threshold.IsZero() || event.CollateralValue == "" {
		return false
	}
	value, err := decimal.NewFromString(event.CollateralValue)
	if err != nil {
		return false
	}
	return value.GreaterThanOrEqual(p.threshold)
}

// PublishOperationEvent отправляет событие. Ключ сообщения это адрес
// владельца, события одного владельца попадают в одну партицию.
func (p *Producer) PublishOperationEvent(ctx context.Context, event storages.OperationEvent) error {
	event.Large = p.IsLarge(event)

	messageBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Errorf("Failed to marshal Kafka message: %v", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Owner),
		Value: messageBytes,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorf("Failed to send message to Kafka: %v", err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	if event.Large {
		p.logger.Infof("Sent large %s event to Kafka: owner=%s, value=%s",
			event.Kind, event.Owner, event.CollateralValue)
	} else {
		p.logger.Debugf("Sent %s event %s to Kafka", event.Kind, event.OperationID)
	}
	return nil
}

// Close закрывает Kafka producer
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}
