package mongodb

import (
	"context"
	"fmt"
	"time"

	"gw-lending/internal/storages"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveEventBatch сохраняет пакет событий. Дубликаты по
// (operation_id, phase) пропускаются.
func (s *MongoStorage) SaveEventBatch(ctx context.Context, events []storages.OperationEvent) error {
	if len(events) == 0 {
		return nil
	}

	documents := make([]interface{}, len(events))
	now := time.Now()
	for i := range events {
		events[i].JournaledAt = now
		documents[i] = events[i]
	}

	// Неупорядоченная вставка продолжает после ошибок дубликатов
	opts := options.InsertMany().SetOrdered(false)
	result, err := s.collection.InsertMany(ctx, documents, opts)
	if err != nil && !onlyDuplicates(err) {
		s.logger.Errorf("Failed to save event batch: %v", err)
		return fmt.Errorf("failed to save event batch: %w", err)
	}

	inserted := 0
	if result != nil {
		inserted = len(result.InsertedIDs)
	}
	s.logger.Infof("Saved batch of %d events (inserted: %d)", len(events), inserted)
	return nil
}

const duplicateKeyCode = 11000

func onlyDuplicates(err error) bool {
	bwe, ok := err.(mongo.BulkWriteException)
	if !ok || bwe.WriteConcernError != nil {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return len(bwe.WriteErrors) > 0
}

// GetEventsByOwner последние события владельца
func (s *MongoStorage) GetEventsByOwner(ctx context.Context, owner string, limit int) ([]storages.OperationEvent, error) {
	filter := bson.M{"owner": owner}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	return s.find(ctx, filter, opts)
}

// GetRecentEvents последние сохраненные события
func (s *MongoStorage) GetRecentEvents(ctx context.Context, limit int) ([]storages.OperationEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "journaled_at", Value: -1}}).
		SetLimit(int64(limit))

	return s.find(ctx, bson.M{}, opts)
}

func (s *MongoStorage) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]storages.OperationEvent, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		s.logger.Errorf("Failed to query events: %v", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []storages.OperationEvent
	if err := cursor.All(ctx, &events); err != nil {
		s.logger.Errorf("Failed to decode events: %v", err)
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	s.logger.Debugf("Retrieved %d events", len(events))
	return events, nil
}

// GetStatistics возвращает агрегаты по журналу
func (s *MongoStorage) GetStatistics(ctx context.Context) (*storages.JournalStatistics, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$facet", Value: bson.M{
			"totals": []bson.M{
				{"$group": bson.M{
					"_id":          nil,
					"total_events": bson.M{"$sum": 1},
					"total_failed": bson.M{"$sum": bson.M{
						"$cond": []interface{}{bson.M{"$eq": []string{"$phase", "failed"}}, 1, 0},
					}},
					"total_large":       bson.M{"$sum": bson.M{"$cond": []interface{}{"$large", 1, 0}}},
					"last_journaled_at": bson.M{"$max": "$journaled_at"},
				}},
			},
			"by_kind": []bson.M{
				{"$group": bson.M{"_id": "$kind", "count": bson.M{"$sum": 1}}},
			},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Errorf("Failed to get statistics: %v", err)
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Totals []struct {
			TotalEvents     int64     `bson:"total_events"`
			TotalFailed     int64     `bson:"total_failed"`
			TotalLarge      int64     `bson:"total_large"`
			LastJournaledAt time.Time `bson:"last_journaled_at"`
		} `bson:"totals"`
		ByKind []struct {
			Kind  string `bson:"_id"`
			Count int64  `bson:"count"`
		} `bson:"by_kind"`
	}

	if err := cursor.All(ctx, &results); err != nil {
		s.logger.Errorf("Failed to decode statistics: %v", err)
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}

	stats := &storages.JournalStatistics{ByKind: make(map[string]int64)}
	if len(results) > 0 {
		if len(results[0].Totals) > 0 {
			t := results[0].Totals[0]
			stats.TotalEvents = t.TotalEvents
			stats.TotalFailed = t.TotalFailed
			stats.TotalLarge = t.TotalLarge
			stats.LastJournaledAt = t.LastJournaledAt
		}
		for _, k := range results[0].ByKind {
			stats.ByKind[k.Kind] = k.Count
		}
	}

	s.logger.Debugf("Statistics: Events=%d, Failed=%d, Large=%d",
		stats.TotalEvents, stats.TotalFailed, stats.TotalLarge)

	return stats, nil
}
