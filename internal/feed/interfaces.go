package feed

import (
	"context"

	"animelight/internal/models"
)

// PostSource is the backend data-fetch interface.
type PostSource interface {
	// FetchPosts returns base rows newest first and whether rows exist past the window.
	FetchPosts(ctx context.Context, offset, limit int) ([]models.PostRow, bool, error)
	FetchPostDetail(ctx context.Context, postID, viewerID string) (*models.PostDetail, error)
}

// BatchDetailSource resolves many posts' details at once. A PostSource may also implement it.
type BatchDetailSource interface {
	FetchPostDetails(ctx context.Context, postIDs []string, viewerID string) (map[string]*models.PostDetail, error)
}

// MutationSink is the backend mutation interface.
type MutationSink interface {
	InsertLike(ctx context.Context, postID, userID string) error
	DeleteLike(ctx context.Context, postID, userID string) error
	InsertNotification(ctx context.Context, n models.Notification) error
	InsertComment(ctx context.Context, postID, userID, body string) (*models.CommentRow, error)
}

// PageFetcher assembles one fully populated page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageIndex int) (models.FeedPage, error)
}

// SnapshotWriter receives the feed after every full replacement.
type SnapshotWriter interface {
	Snapshot(ctx context.Context, posts []models.Post) error
}

// Persistence is the local cache the session reads on cold start.
type Persistence interface {
	SnapshotWriter
	Restore(ctx context.Context) ([]models.Post, bool, error)
	PersistScrollOffset(ctx context.Context, offset float64) error
	RestoreScrollOffset(ctx context.Context) (float64, bool, error)
	ClearScrollOffset(ctx context.Context) error
	MarkLaunched(ctx context.Context) (bool, error)
}

// Alerter receives user-visible errors.
type Alerter interface {
	Alert(a models.Alert)
}

// NewPostSignal is the counter the realtime listener feeds.
type NewPostSignal interface {
	Value() int
	Reset()
	BeginRefresh()
	EndRefresh()
}

// RealtimeListener is the session's single change subscription.
type RealtimeListener interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
