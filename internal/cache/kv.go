// Package cache holds the local durable key-value stores and the feed Persistence Cache built on them.
package cache

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is a durable string key-value store.
type KV interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryKV keeps entries in process memory. It survives nothing and is meant for tests and ephemeral runs.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// KVEntry is one row of the local sqlite store.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

// SQLiteKV stores entries in a local sqlite file through gorm.
type SQLiteKV struct {
	db *gorm.DB
}

// NewSQLiteKV migrates the kv_entries table and returns the store.
func NewSQLiteKV(db *gorm.DB) (*SQLiteKV, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, err
	}
	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	var entries []KVEntry
	if err := s.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&entries).Error; err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *SQLiteKV) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&KVEntry{}).Error
}

// Close releases the sqlite file handle.
func (s *SQLiteKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
