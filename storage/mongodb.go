package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore implements HashStore with one document per key:
//
//	{_id: key, fields: {name: value, ...}, expire_at: Date}
//
// The TTL monitor only runs about once a minute, so every read also filters
// on expire_at.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

type mongoHash struct {
	ID     string            `bson:"_id"`
	Fields map[string]string `bson:"fields"`
}

// NewMongoStore creates a new MongoDB storage backend
func NewMongoStore(uri, dbName, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(collection),
		now:        time.Now,
	}

	if err := store.createIndexes(); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

// createIndexes creates the TTL index used as the expiry backstop
func (m *MongoStore) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expire_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	_, err := m.collection.Indexes().CreateOne(ctx, ttlIndex)
	return err
}

// live matches key only if it has no expiry or the expiry is in the future.
func (m *MongoStore) live(key string) bson.M {
	return bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"expire_at": bson.M{"$exists": false}},
			bson.M{"expire_at": bson.M{"$gt": m.now()}},
		},
	}
}

// SetFields upserts the listed fields. An expired but unreaped document is
// removed first so the write starts from an empty hash.
func (m *MongoStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key, "expire_at": bson.M{"$lte": m.now()}}); err != nil {
		return err
	}

	set := bson.M{}
	for k, v := range fields {
		set["fields."+k] = v
	}
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	return err
}

// GetFields returns the fields of a live document
func (m *MongoStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	var doc mongoHash
	err := m.collection.FindOne(ctx, m.live(key)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(doc.Fields) == 0 {
		return nil, ErrNotFound
	}
	return doc.Fields, nil
}

// IncrementField converts the string field to a long, adds delta and stores
// it back in a single-document pipeline update, which MongoDB applies
// atomically.
func (m *MongoStore) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	path := "fields." + field
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: path, Value: bson.D{{Key: "$toString", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$toLong", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + path, "0"}}}}},
			delta,
		}}}}}}}}},
	}

	var doc mongoHash
	err := m.collection.FindOneAndUpdate(ctx, m.live(key), update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return parseCounter(key, field, doc.Fields[field])
}

// SetExpiry sets expire_at on a live document
func (m *MongoStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	_, err := m.collection.UpdateOne(ctx, m.live(key),
		bson.M{"$set": bson.M{"expire_at": m.now().Add(ttl)}},
	)
	return err
}

// Delete removes a document
func (m *MongoStore) Delete(ctx context.Context, key string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// Exists reports whether a live document exists
func (m *MongoStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, m.live(key), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping pings the primary
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close closes the MongoDB connection
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}
