package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weave-services/weave/engine/internal/config"
)

// MongoStore saves execution records to a MongoDB collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

const mongoConnectTimeout = 5 * time.Second

var _ ExecutionStore = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and verifies the connection
func NewMongoStore(
	ctx context.Context, cfg config.MongoConfig,
) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) SaveExecution(
	ctx context.Context, rec *ExecutionRecord,
) error {
	_, err := s.coll.InsertOne(ctx, rec)
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
