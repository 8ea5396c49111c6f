package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"animelight/internal/models"
)

// SourceStub is an in-memory backend serving Rows newest first. Set the Func fields to override behaviour.
type SourceStub struct {
	Rows    []models.PostRow
	Details map[string]*models.PostDetail

	FetchPostsFunc   func(ctx context.Context, offset, limit int) ([]models.PostRow, bool, error)
	FetchDetailFunc  func(ctx context.Context, postID, viewerID string) (*models.PostDetail, error)
	FetchDetailsFunc func(ctx context.Context, postIDs []string, viewerID string) (map[string]*models.PostDetail, error)

	PostCalls   atomic.Int32
	DetailCalls atomic.Int32
	BatchCalls  atomic.Int32
}

func (s *SourceStub) FetchPosts(ctx context.Context, offset, limit int) ([]models.PostRow, bool, error) {
	s.PostCalls.Add(1)
	if s.FetchPostsFunc != nil {
		return s.FetchPostsFunc(ctx, offset, limit)
	}
	if offset >= len(s.Rows) {
		return []models.PostRow{}, false, nil
	}
	end := min(offset+limit, len(s.Rows))
	out := append([]models.PostRow(nil), s.Rows[offset:end]...)
	return out, end < len(s.Rows), nil
}

func (s *SourceStub) FetchPostDetail(ctx context.Context, postID, viewerID string) (*models.PostDetail, error) {
	s.DetailCalls.Add(1)
	if s.FetchDetailFunc != nil {
		return s.FetchDetailFunc(ctx, postID, viewerID)
	}
	return s.detail(postID), nil
}

func (s *SourceStub) detail(postID string) *models.PostDetail {
	if d, ok := s.Details[postID]; ok {
		cp := *d
		return &cp
	}
	return &models.PostDetail{Author: models.Profile{Username: "user-" + postID}, Images: []models.PostImage{}}
}

// BatchSourceStub adds FetchPostDetails to SourceStub.
type BatchSourceStub struct {
	*SourceStub
}

func (s BatchSourceStub) FetchPostDetails(ctx context.Context, postIDs []string, viewerID string) (map[string]*models.PostDetail, error) {
	s.BatchCalls.Add(1)
	if s.FetchDetailsFunc != nil {
		return s.FetchDetailsFunc(ctx, postIDs, viewerID)
	}
	out := make(map[string]*models.PostDetail, len(postIDs))
	for _, id := range postIDs {
		out[id] = s.detail(id)
	}
	return out, nil
}

// PageFetcherStub serves pages from Pages by index. Gate, when set, blocks every fetch until it receives.
type PageFetcherStub struct {
	mu    sync.Mutex
	Pages map[int]models.FeedPage
	Errs  map[int]error
	Gate  chan struct{}
	// Started receives the page index when a fetch begins, if non-nil.
	Started chan int
	Calls   atomic.Int32
}

func NewPageFetcherStub() *PageFetcherStub {
	return &PageFetcherStub{Pages: map[int]models.FeedPage{}, Errs: map[int]error{}}
}

// SetPage installs a page result.
func (f *PageFetcherStub) SetPage(idx int, posts []models.Post, hasMore bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pages[idx] = models.FeedPage{Posts: posts, HasMore: hasMore, PageIndex: idx}
	delete(f.Errs, idx)
}

// SetError makes fetching idx fail.
func (f *PageFetcherStub) SetError(idx int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errs[idx] = err
}

func (f *PageFetcherStub) FetchPage(ctx context.Context, idx int) (models.FeedPage, error) {
	f.Calls.Add(1)
	if f.Started != nil {
		f.Started <- idx
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return models.FeedPage{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Errs[idx]; ok {
		return models.FeedPage{}, err
	}
	page, ok := f.Pages[idx]
	if !ok {
		return models.FeedPage{Posts: []models.Post{}, PageIndex: idx}, nil
	}
	return page, nil
}

// MutationSinkStub records writes. Set the Err fields to make a write fail; Gate blocks like writes.
type MutationSinkStub struct {
	mu            sync.Mutex
	Likes         map[string]bool
	Notifications []models.Notification
	Comments      []models.CommentRow

	LikeErr         error
	NotificationErr error
	CommentErr      error
	Gate            chan struct{}

	LikeCalls atomic.Int32
}

func NewMutationSinkStub() *MutationSinkStub {
	return &MutationSinkStub{Likes: map[string]bool{}}
}

func (m *MutationSinkStub) wait(ctx context.Context) error {
	if m.Gate == nil {
		return nil
	}
	select {
	case <-m.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MutationSinkStub) InsertLike(ctx context.Context, postID, userID string) error {
	m.LikeCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LikeErr != nil {
		return m.LikeErr
	}
	m.Likes[postID+"/"+userID] = true
	return nil
}

func (m *MutationSinkStub) DeleteLike(ctx context.Context, postID, userID string) error {
	m.LikeCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LikeErr != nil {
		return m.LikeErr
	}
	delete(m.Likes, postID+"/"+userID)
	return nil
}

func (m *MutationSinkStub) InsertNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotificationErr != nil {
		return m.NotificationErr
	}
	m.Notifications = append(m.Notifications, n)
	return nil
}

func (m *MutationSinkStub) InsertComment(_ context.Context, postID, userID, body string) (*models.CommentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommentErr != nil {
		return nil, m.CommentErr
	}
	row := models.CommentRow{
		ID:      fmt.Sprintf("comment-%d", len(m.Comments)+1),
		PostID:  postID,
		UserID:  userID,
		Content: body,
	}
	m.Comments = append(m.Comments, row)
	return &row, nil
}

// SentNotifications returns a copy of the recorded notifications.
func (m *MutationSinkStub) SentNotifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.Notifications...)
}

// Liked reports whether the stub holds a like row.
func (m *MutationSinkStub) Liked(postID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Likes[postID+"/"+userID]
}

// ListenerStub counts lifecycle calls.
type ListenerStub struct {
	StartCalls atomic.Int32
	StopCalls  atomic.Int32
	StartErr   error
}

func (l *ListenerStub) Start(context.Context) error {
	l.StartCalls.Add(1)
	return l.StartErr
}

func (l *ListenerStub) Stop(context.Context) error {
	l.StopCalls.Add(1)
	return nil
}
