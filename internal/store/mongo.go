package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores alerts as documents in a collection with a unique index on id.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// OpenMongo connects, verifies the connection, and ensures the unique index.
func OpenMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    domain.Now,
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// EnsureIndexes creates the unique id index and an expires index used by
// cleanup. Both are idempotent.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("id_unique"),
		},
		{
			Keys:    bson.D{{Key: "expires", Value: 1}},
			Options: options.Index().SetName("expires"),
		},
	})
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

func (m *Mongo) TryInsert(ctx context.Context, f domain.Feature) (InsertResult, error) {
	alert, rejected := Admit(f, m.now())
	if rejected != nil {
		return *rejected, nil
	}

	if _, err := m.coll.InsertOne(ctx, alert); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return InsertResult{Outcome: AlreadyExists, Alert: alert}, nil
		}
		return InsertResult{}, fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}
	return InsertResult{Outcome: Inserted, Alert: alert}, nil
}

func (m *Mongo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"expires": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
