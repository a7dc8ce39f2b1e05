package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gw-lending/internal/metrics"
	"gw-lending/internal/storages"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageReader часть kafka.Reader, нужная consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает события операций и складывает их в журнал
type Consumer struct {
	reader        messageReader
	journal       storages.Journal
	metrics       *metrics.Metrics
	logger        *logrus.Logger
	batchSize     int
	workers       int
	flushInterval time.Duration
	retryAttempts int
	retryDelay    time.Duration

	// Статистика
	mu                sync.RWMutex
	messagesProcessed int64
	messagesFailed    int64
	startTime         time.Time
}

// Config конфигурация consumer
type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	MinBytes      int
	MaxBytes      int
	MaxWait       time.Duration
	BatchSize     int
	Workers       int
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// NewConsumer создает новый Kafka consumer
func NewConsumer(cfg *Config, journal storages.Journal, m *metrics.Metrics, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		Logger:      kafka.LoggerFunc(logger.Debugf),
		ErrorLogger: kafka.LoggerFunc(logger.Errorf),
	})

	logger.Infof("Kafka consumer initialized: Topic=%s, GroupID=%s, Brokers=%v",
		cfg.Topic, cfg.GroupID, cfg.Brokers)

	return newConsumer(reader, cfg, journal, m, logger)
}

func newConsumer(reader messageReader, cfg *Config, journal storages.Journal, m *metrics.Metrics, logger *logrus.Logger) *Consumer {
	c := &Consumer{
		reader:        reader,
		journal:       journal,
		metrics:       m,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		workers:       cfg.Workers,
		flushInterval: cfg.FlushInterval,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		startTime:     time.Now(),
	}
	if c.batchSize <= 0 {
		c.batchSize = 1
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	if c.retryAttempts <= 0 {
		c.retryAttempts = 1
	}
	if c.flushInterval <= 0 {
		c.flushInterval = time.Second
	}
	return c
}

// Start читает сообщения до отмены ctx
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer...")

	messages := make(chan kafka.Message, c.batchSize*2)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.processMessages(ctx, messages, workerID)
		}(i)
	}

	go func() {
		defer close(messages)
		c.readMessages(ctx, messages)
	}()

	wg.Wait()

	c.logger.Info("Kafka consumer stopped")
	return nil
}

func (c *Consumer) readMessages(ctx context.Context, messages chan<- kafka.Message) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Stopping message reading...")
				return
			}
			c.logger.Errorf("Failed to fetch message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		select {
		case messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) processMessages(ctx context.Context, messages <-chan kafka.Message, workerID int) {
	batch := make([]storages.OperationEvent, 0, c.batchSize)
	kafkaMessages := make([]kafka.Message, 0, c.batchSize)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) > 0 {
			c.flushBatch(ctx, batch, kafkaMessages)
			batch = batch[:0]
			kafkaMessages = kafkaMessages[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			// оставшийся пакет сохраняется после отмены
			flush(context.WithoutCancel(ctx))
			return

		case <-ticker.C:
			flush(ctx)

		case msg, ok := <-messages:
			if !ok {
				flush(context.WithoutCancel(ctx))
				return
			}

			event, err := ParseEvent(msg.Value)
			if err != nil {
				c.logger.Errorf("Worker %d: Failed to parse message at offset %d: %v", workerID, msg.Offset, err)
				c.incrementFailed(1)
				c.metrics.JournaledEvents.WithLabelValues("invalid").Inc()
				// коммитим, чтобы не блокировать очередь
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.logger.Errorf("Worker %d: Failed to commit failed message: %v", workerID, err)
				}
				continue
			}

			batch = append(batch, *event)
			kafkaMessages = append(kafkaMessages, msg)

			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		}
	}
}

// ParseEvent разбирает событие операции из сообщения
func ParseEvent(value []byte) (*storages.OperationEvent, error) {
	var event storages.OperationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if event.OperationID == "" || event.Kind == "" {
		return nil, fmt.Errorf("event without operation id or kind")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return &event, nil
}

// flushBatch сохраняет пакет с повторами и коммитит смещения.
// Несохраненный пакет не коммитится и будет прочитан снова.
func (c *Consumer) flushBatch(ctx context.Context, batch []storages.OperationEvent, messages []kafka.Message) {
	start := time.Now()

	var err error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		err = c.journal.SaveEventBatch(ctx, batch)
		if err == nil {
			break
		}

		c.logger.Warnf("Attempt %d/%d: Failed to save batch: %v", attempt+1, c.retryAttempts, err)

		if attempt < c.retryAttempts-1 {
			time.Sleep(c.retryDelay)
		}
	}

	if err != nil {
		c.logger.Errorf("Failed to save batch after %d attempts: %v", c.retryAttempts, err)
		c.incrementFailed(int64(len(batch)))
		c.metrics.JournaledEvents.WithLabelValues("failed").Add(float64(len(batch)))
		return
	}

	if err := c.reader.CommitMessages(ctx, messages...); err != nil {
		c.logger.Errorf("Failed to commit messages: %v", err)
		return
	}

	duration := time.Since(start)
	c.incrementProcessed(int64(len(batch)))
	c.metrics.JournaledEvents.WithLabelValues("saved").Add(float64(len(batch)))

	c.logger.Infof("Flushed batch: size=%d, duration=%v", len(batch), duration)
}

func (c *Consumer) incrementProcessed(count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesProcessed += count
}

func (c *Consumer) incrementFailed(count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesFailed += count
}

// Statistics счетчики обработки
type Statistics struct {
	MessagesProcessed int64   `json:"messages_processed"`
	MessagesFailed    int64   `json:"messages_failed"`
	ProcessingRate    float64 `json:"processing_rate"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// GetStatistics возвращает статистику обработки
func (c *Consumer) GetStatistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	uptime := time.Since(c.startTime).Seconds()
	stats := Statistics{
		MessagesProcessed: c.messagesProcessed,
		MessagesFailed:    c.messagesFailed,
		UptimeSeconds:     uptime,
	}
	if uptime > 0 {
		stats.ProcessingRate = float64(c.messagesProcessed) / uptime
	}
	return stats
}

// Close закрывает consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing Kafka consumer")
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
