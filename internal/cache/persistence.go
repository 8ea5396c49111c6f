package cache

import (
	"context"
	"strconv"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"
)

// Keys written by the Persistence Cache.
const (
	KeySnapshot     = "feed:snapshot"
	KeyScrollOffset = "feed:scroll_offset"
	KeyLaunched     = "feed:launched"
)

// SnapshotVersion is bumped whenever the stored Post shape changes.
const SnapshotVersion = 1

type snapshotEnvelope struct {
	Version int           `json:"version" msgpack:"version"`
	SavedAt time.Time     `json:"saved_at" msgpack:"saved_at"`
	Posts   []models.Post `json:"posts" msgpack:"posts"`
}

// Persistence keeps the last full feed and the session scroll offset in a KV.
type Persistence struct {
	kv     KV
	codec  Codec
	logger *observability.FeedLogger
	now    func() time.Time
}

// NewPersistence creates a Persistence Cache. A nil codec means JSON.
func NewPersistence(kv KV, codec Codec) *Persistence {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Persistence{
		kv:     kv,
		codec:  codec,
		logger: observability.NewFeedLogger(),
		now:    time.Now,
	}
}

// Snapshot overwrites the stored feed with posts.
func (p *Persistence) Snapshot(ctx context.Context, posts []models.Post) error {
	if posts == nil {
		posts = []models.Post{}
	}
	data, err := p.codec.Encode(snapshotEnvelope{
		Version: SnapshotVersion,
		SavedAt: p.now().UTC(),
		Posts:   posts,
	})
	if err == nil {
		err = p.kv.Set(ctx, KeySnapshot, data)
	}
	observability.RecordCacheOp("snapshot", err)
	if err != nil {
		return models.NewCacheError("snapshot", err)
	}
	return nil
}

// Restore returns the stored feed. ok is false when nothing usable is stored;
// an unreadable or outdated snapshot counts as nothing stored.
func (p *Persistence) Restore(ctx context.Context) ([]models.Post, bool, error) {
	data, found, err := p.kv.Get(ctx, KeySnapshot)
	observability.RecordCacheOp("restore", err)
	if err != nil {
		return nil, false, models.NewCacheError("restore", err)
	}
	if !found {
		return nil, false, nil
	}

	var env snapshotEnvelope
	if err := p.codec.Decode(data, &env); err != nil {
		p.logger.LogCacheError(ctx, "restore_decode", err)
		return nil, false, nil
	}
	if env.Version != SnapshotVersion {
		return nil, false, nil
	}
	posts := env.Posts
	if posts == nil {
		posts = []models.Post{}
	}
	for i := range posts {
		if posts[i].Images == nil {
			posts[i].Images = []models.PostImage{}
		}
	}
	return posts, true, nil
}

// PersistScrollOffset stores the scroll position for the current session.
func (p *Persistence) PersistScrollOffset(ctx context.Context, offset float64) error {
	err := p.kv.Set(ctx, KeyScrollOffset, strconv.FormatFloat(offset, 'f', -1, 64))
	observability.RecordCacheOp("persist_offset", err)
	if err != nil {
		return models.NewCacheError("scroll offset write", err)
	}
	return nil
}

// RestoreScrollOffset returns the stored scroll position, ok=false when none is stored.
func (p *Persistence) RestoreScrollOffset(ctx context.Context) (float64, bool, error) {
	data, found, err := p.kv.Get(ctx, KeyScrollOffset)
	observability.RecordCacheOp("restore_offset", err)
	if err != nil {
		return 0, false, models.NewCacheError("scroll offset read", err)
	}
	if !found {
		return 0, false, nil
	}
	offset, err := strconv.ParseFloat(data, 64)
	if err != nil || offset < 0 {
		return 0, false, nil
	}
	return offset, true, nil
}

// ClearScrollOffset forgets the stored scroll position. Called on every cold start.
func (p *Persistence) ClearScrollOffset(ctx context.Context) error {
	err := p.kv.Remove(ctx, KeyScrollOffset)
	observability.RecordCacheOp("clear_offset", err)
	if err != nil {
		return models.NewCacheError("scroll offset clear", err)
	}
	return nil
}

// MarkLaunched records that the app has launched and reports whether this is the first launch ever.
func (p *Persistence) MarkLaunched(ctx context.Context) (bool, error) {
	_, found, err := p.kv.Get(ctx, KeyLaunched)
	if err != nil {
		observability.RecordCacheOp("launch_flag", err)
		return false, models.NewCacheError("launch flag read", err)
	}
	if found {
		return false, nil
	}
	err = p.kv.Set(ctx, KeyLaunched, "1")
	observability.RecordCacheOp("launch_flag", err)
	if err != nil {
		return true, models.NewCacheError("launch flag write", err)
	}
	return true, nil
}
