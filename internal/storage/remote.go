package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sentinai/netguard/internal/models"
)

// RemoteStore is the networked primary backend. Every failure that means
// "the backend is unusable right now" is reported as ErrUnreachable so the
// gateway can make its fallback decision with errors.Is.
type RemoteStore interface {
	Ping(ctx context.Context) error
	QueryRecent(ctx context.Context, limit int) ([]models.Event, error)
	QueryRange(ctx context.Context, start, end string) ([]models.Event, error)
	Upsert(ctx context.Context, event models.Event) error
	InsertMany(ctx context.Context, events []models.Event) (int, error)
	UpdateStatus(ctx context.Context, id string, status models.EventStatus) (models.Event, error)
	AggregateByField(ctx context.Context, field string) (map[string]int, error)
	AggregateSeverityBuckets(ctx context.Context) (map[string]int, error)
	Close(ctx context.Context) error
}

// MongoStore implements RemoteStore against a MongoDB collection of Event
// documents keyed by the application-level id field.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB with a bounded server-selection timeout
// so startup never hangs on an unreachable cluster. The connection itself is
// lazy in the driver; reachability is established by the gateway's probe.
func NewMongoStore(ctx context.Context, uri, database, collection string, probeTimeout time.Duration, logger *slog.Logger) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(probeTimeout).
		SetConnectTimeout(probeTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to construct mongo client: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

// Ping probes the deployment. The server-selection timeout set at
// construction bounds the wait.
func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return wrapRemoteErr("ping", err)
	}
	return nil
}

// QueryRecent returns up to limit events sorted by timestamp descending.
// limit <= 0 means unbounded. The internal _id is projected out so both
// backends return identically shaped documents.
func (m *MongoStore) QueryRecent(ctx context.Context, limit int) ([]models.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetProjection(bson.M{"_id": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrapRemoteErr("query recent", err)
	}

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, wrapRemoteErr("decode recent", err)
	}
	return events, nil
}

// QueryRange returns events with start <= timestamp < end, sorted
// descending. Inclusive start, exclusive end.
func (m *MongoStore) QueryRange(ctx context.Context, start, end string) ([]models.Event, error) {
	filter := bson.M{"timestamp": bson.M{"$gte": start, "$lt": end}}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetProjection(bson.M{"_id": 0})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapRemoteErr("query range", err)
	}

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, wrapRemoteErr("decode range", err)
	}
	return events, nil
}

// Upsert writes the event keyed on id with create-or-replace semantics.
func (m *MongoStore) Upsert(ctx context.Context, event models.Event) error {
	filter := bson.M{"id": event.ID}
	update := bson.M{"$set": event}

	if _, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return wrapRemoteErr("upsert", err)
	}
	return nil
}

// InsertMany performs an unordered bulk insert and reports how many
// documents were written. A partial failure returns the applied count with
// ErrPartialWrite; applied inserts are not rolled back.
func (m *MongoStore) InsertMany(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(events))
	for i, event := range events {
		docs[i] = event
	}

	result, err := m.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if result != nil {
		inserted = len(result.InsertedIDs)
	}
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) {
			return inserted, fmt.Errorf("%w: %d of %d applied: %v", ErrPartialWrite, inserted, len(events), err)
		}
		return inserted, wrapRemoteErr("bulk insert", err)
	}
	return inserted, nil
}

// UpdateStatus applies a targeted status mutation and returns the updated
// document. An absent id is ErrNotFound, a normal negative result.
func (m *MongoStore) UpdateStatus(ctx context.Context, id string, status models.EventStatus) (models.Event, error) {
	filter := bson.M{"id": id}
	update := bson.M{"$set": bson.M{"status": status}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 0})

	var event models.Event
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Event{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
		}
		return models.Event{}, wrapRemoteErr("update status", err)
	}
	return event, nil
}

// AggregateByField groups the collection by the given field with a $sum
// count per distinct value.
func (m *MongoStore) AggregateByField(ctx context.Context, field string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	return m.runCountAggregation(ctx, "aggregate by "+field, pipeline)
}

// AggregateSeverityBuckets buckets risk scores server-side into the four
// severity labels. Absent buckets are zero-filled by the caller.
func (m *MongoStore) AggregateSeverityBuckets(ctx context.Context) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "severity_label", Value: bson.D{{Key: "$switch", Value: bson.D{
				{Key: "branches", Value: bson.A{
					bson.D{
						{Key: "case", Value: bson.D{{Key: "$gte", Value: bson.A{"$risk_score", 80}}}},
						{Key: "then", Value: models.SeverityCritical},
					},
					bson.D{
						{Key: "case", Value: bson.D{{Key: "$gte", Value: bson.A{"$risk_score", 60}}}},
						{Key: "then", Value: models.SeverityHigh},
					},
					bson.D{
						{Key: "case", Value: bson.D{{Key: "$gte", Value: bson.A{"$risk_score", 30}}}},
						{Key: "then", Value: models.SeverityMedium},
					},
				}},
				{Key: "default", Value: models.SeverityLow},
			}}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$severity_label"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	return m.runCountAggregation(ctx, "aggregate severity", pipeline)
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongo client: %w", err)
	}
	return nil
}

func (m *MongoStore) runCountAggregation(ctx context.Context, op string, pipeline mongo.Pipeline) (map[string]int, error) {
	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapRemoteErr(op, err)
	}

	var rows []struct {
		Key   string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapRemoteErr("decode "+op, err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

// wrapRemoteErr classifies driver failures. Network, timeout and
// server-selection errors become ErrUnreachable; everything else is wrapped
// as-is so genuine data errors keep their identity.
func wrapRemoteErr(op string, err error) error {
	if isUnreachable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnreachable(err error) bool {
	// IsTimeout also covers server-selection exhaustion, which is how an
	// unreachable deployment surfaces from the driver.
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected)
}
