package cache

import (
	"fmt"

	"animelight/internal/config"
	"animelight/internal/database"

	"github.com/redis/go-redis/v9"
)

// NewKV builds the store selected by CACHE_BACKEND. The redis backend needs a connected client.
// The sqlite store owns its file handle and implements io.Closer.
func NewKV(cfg *config.Config, redisClient *redis.Client, viewerID string) (KV, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return NewMemoryKV(), nil
	case config.CacheBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis connection")
		}
		return NewRedisKV(redisClient, "animelight:"+viewerID), nil
	case config.CacheBackendSQLite, "":
		db, err := database.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		kv, err := NewSQLiteKV(db)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
