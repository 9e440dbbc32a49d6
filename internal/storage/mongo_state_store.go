package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB state store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. skyplots
	Collection string // e.g. plot_state
}

// MongoStateStore keeps one document per world: {_id: worldID, data: <json>, updated_at}.
type MongoStateStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type stateDocument struct {
	WorldID   string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStateStore establishes connection and returns the store.
func NewMongoStateStore(ctx context.Context, cfg MongoConfig) (*MongoStateStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "skyplots"
	}
	if cfg.Collection == "" {
		cfg.Collection = "plot_state"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStateStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}, nil
}

// Load implements StateStore.
func (m *MongoStateStore) Load(ctx context.Context, worldID string) ([]byte, bool, error) {
	if err := validateWorldID(worldID); err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc stateDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": worldID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load state for %s: %w", worldID, err)
	}
	return doc.Data, true, nil
}

// Save implements StateStore with an upserting replace.
func (m *MongoStateStore) Save(ctx context.Context, worldID string, data []byte) error {
	if err := validateWorldID(worldID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	doc := stateDocument{WorldID: worldID, Data: data, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": worldID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", worldID, err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoStateStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
