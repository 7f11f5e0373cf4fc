package storage

import (
	"fmt"

	"github.com/johnwmail/vpaste/config"
)

// NewStore creates the storage backend selected by cfg.StoreType
func NewStore(cfg *config.Config) (HashStore, error) {
	switch cfg.StoreType {
	case config.StoreRedis:
		return NewRedisStore(cfg.RedisURL)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreBolt:
		return NewBoltStore(cfg.BoltPath)
	case config.StoreMongoDB:
		return NewMongoStore(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case config.StoreDynamoDB:
		return NewDynamoStore(cfg.DynamoTable, cfg.DynamoRegion)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
