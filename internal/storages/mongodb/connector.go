package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Config подключение к журналу
type Config struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// MongoStorage журнал событий операций в MongoDB
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logrus.Logger
}

// journalIndexes индексы коллекции. Пара operation_id+phase уникальна:
// повторная доставка из Kafka не дублирует запись.
var journalIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "operation_id", Value: 1}, {Key: "phase", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("operation_phase"),
	},
	{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("owner_recent"),
	},
	{
		Keys:    bson.D{{Key: "journaled_at", Value: -1}},
		Options: options.Index().SetName("journaled_at"),
	},
	{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "large", Value: 1}},
		Options: options.Index().SetName("kind_large"),
	},
}

func clientOptions(cfg *Config) *options.ClientOptions {
	return options.Client().
		ApplyURI(cfg.URI).
		SetAppName("gw-journal").
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetServerSelectionTimeout(cfg.Timeout).
		SetWriteConcern(writeconcern.Majority())
}

// New подключается к MongoDB и создает индексы журнала
func New(cfg *Config, logger *logrus.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	storage := &MongoStorage{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger,
	}

	names, err := storage.collection.Indexes().CreateMany(ctx, journalIndexes)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	logger.Infof("Journal ready: %s.%s, indexes %v", cfg.Database, cfg.Collection, names)
	return storage, nil
}

// Ping проверяет соединение
func (s *MongoStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStorage) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	s.logger.Info("Closing MongoDB connection")
	return s.client.Disconnect(ctx)
}
