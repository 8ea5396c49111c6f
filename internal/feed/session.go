package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"animelight/internal/featureflags"
	"animelight/internal/models"
	"animelight/internal/observability"
	"animelight/internal/validation"

	"github.com/google/uuid"
)

var (
	ErrSessionStarted = errors.New("feed session already started")
	ErrSessionStopped = errors.New("feed session stopped")
)

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	ViewerID string
	PageSize int
	Fetcher  PageFetcher
	Mutator  MutationSink
	Cache    Persistence
	Listener RealtimeListener
	Signal   NewPostSignal
	Alerts   Alerter
	Flags    *featureflags.Manager
}

// StartResult describes what a cold start found in the local cache.
type StartResult struct {
	FirstLaunch bool `json:"first_launch"`
	Restored    int  `json:"restored"`
}

// MountResult is what the feed screen needs when it attaches.
type MountResult struct {
	Offset   float64 `json:"offset"`
	Restored bool    `json:"restored"`
}

// SessionState is the full read model the UI renders.
type SessionState struct {
	PagerState
	NewPosts int           `json:"new_posts"`
	Posts    []models.Post `json:"posts"`
}

// Session owns one viewer's feed from cold start to logout.
type Session struct {
	ID       string
	viewerID string

	store     *Store
	pager     *Pager
	mutations *MutationEngine
	cache     Persistence
	listener  RealtimeListener
	signal    NewPostSignal
	alerts    Alerter
	logger    *observability.FeedLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	mounted  bool
	stopOnce sync.Once
	stopErr  error
}

// NewSession assembles a session. Cache, Listener, Signal, Alerts and Flags are optional.
func NewSession(cfg SessionConfig) *Session {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	var snapshot SnapshotWriter
	if cfg.Cache != nil {
		snapshot = cfg.Cache
	}
	s := &Session{
		ID:        uuid.NewString(),
		viewerID:  cfg.ViewerID,
		store:     store,
		pager:     NewPager(store, cfg.Fetcher, cfg.PageSize, snapshot, cfg.Alerts),
		mutations: NewMutationEngine(store, cfg.Mutator, cfg.ViewerID, cfg.Alerts, cfg.Flags),
		cache:     cfg.Cache,
		listener:  cfg.Listener,
		signal:    cfg.Signal,
		alerts:    cfg.Alerts,
		logger:    observability.NewFeedLogger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.ctx = observability.WithSession(s.ctx, s.ID, cfg.ViewerID)
	return s
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) ViewerID() string { return s.viewerID }

// Start performs the cold start: it clears the scroll offset, paints the cached feed when this
// is not the first launch, opens the realtime subscription and starts the live initial load.
func (s *Session) Start(ctx context.Context) (StartResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return StartResult{}, ErrSessionStopped
	}
	if s.started {
		s.mu.Unlock()
		return StartResult{}, ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	ctx = observability.WithSession(ctx, s.ID, s.viewerID)
	var res StartResult

	if s.cache != nil {
		first, err := s.cache.MarkLaunched(ctx)
		if err != nil {
			s.logger.LogCacheError(ctx, "launch_flag", err)
		}
		res.FirstLaunch = first

		if err := s.cache.ClearScrollOffset(ctx); err != nil {
			s.logger.LogCacheError(ctx, "clear_offset", err)
		}

		if !first {
			posts, ok, err := s.cache.Restore(ctx)
			if err != nil {
				s.logger.LogCacheError(ctx, "restore", err)
			}
			if ok {
				s.store.ReplaceAll(posts)
				res.Restored = len(posts)
			}
		}
	}

	if s.listener != nil {
		if err := s.listener.Start(s.ctx); err != nil {
			s.raise(models.NewSubscriptionError(err))
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer observability.RecoverAndReport(s.ctx, "feed.initial_load")
		_ = s.pager.LoadInitial(s.ctx)
	}()

	return res, nil
}

// Mount is called when the feed screen attaches. The first mount of a session starts at the
// top; later mounts resume at the offset saved by the last Unmount.
func (s *Session) Mount(ctx context.Context) (MountResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return MountResult{}, ErrSessionStopped
	}
	first := !s.mounted
	s.mounted = true
	s.mu.Unlock()

	if first || s.cache == nil {
		return MountResult{}, nil
	}
	offset, ok, err := s.cache.RestoreScrollOffset(ctx)
	if err != nil {
		s.logger.LogCacheError(ctx, "restore_offset", err)
		return MountResult{}, nil
	}
	return MountResult{Offset: offset, Restored: ok}, nil
}

// Unmount saves the scroll offset. The realtime subscription stays open.
func (s *Session) Unmount(ctx context.Context, offset float64) error {
	if err := validation.ValidateScrollOffset(offset); err != nil {
		return models.NewValidationError(err.Error())
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.PersistScrollOffset(ctx, offset); err != nil {
		s.logger.LogCacheError(ctx, "persist_offset", err)
		return err
	}
	return nil
}

// Refresh resets the new-posts counter and reloads the feed from page 0.
// Insert events arriving while the refresh runs are not counted.
func (s *Session) Refresh(ctx context.Context) error {
	if s.isStopped() {
		return ErrSessionStopped
	}
	if s.signal != nil {
		s.signal.BeginRefresh()
		defer s.signal.EndRefresh()
		s.signal.Reset()
	}
	return s.pager.LoadInitial(s.withSession(ctx))
}

// LoadMore fetches the next page; started is false when the call was dropped.
func (s *Session) LoadMore(ctx context.Context) (started bool, err error) {
	if s.isStopped() {
		return false, ErrSessionStopped
	}
	return s.pager.LoadMore(s.withSession(ctx))
}

func (s *Session) ToggleLike(ctx context.Context, postID string, currentlyLiked bool) (*Pending, error) {
	if s.isStopped() {
		return nil, ErrSessionStopped
	}
	return s.mutations.ToggleLike(s.withSession(ctx), postID, currentlyLiked)
}

func (s *Session) AddComment(ctx context.Context, postID, body string) (*models.CommentRow, error) {
	if s.isStopped() {
		return nil, ErrSessionStopped
	}
	return s.mutations.AddComment(s.withSession(ctx), postID, body)
}

// ConfirmComment counts a comment persisted by another part of the app.
func (s *Session) ConfirmComment(postID string) bool {
	return s.mutations.ConfirmComment(postID)
}

func (s *Session) InFlight(postID string) bool {
	return s.mutations.InFlight(postID)
}

func (s *Session) Posts() []models.Post {
	return s.store.GetAll()
}

func (s *Session) State() SessionState {
	st := SessionState{
		PagerState: s.pager.State(),
		Posts:      s.store.GetAll(),
	}
	if s.signal != nil {
		st.NewPosts = s.signal.Value()
	}
	return st
}

// Stop ends the session: in-flight page results are discarded, the realtime subscription is
// closed and outstanding writes are given until ctx expires to settle. Later calls return the
// first call's result.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.pager.Stop()
		s.cancel()

		var errs []error
		if s.listener != nil {
			if err := s.listener.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		if err := s.mutations.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

// WaitIdle blocks until the background initial load and every pending write have finished.
func (s *Session) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.mutations.Wait(ctx)
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) withSession(ctx context.Context) context.Context {
	return observability.WithSession(observability.EnsureCorrelationID(ctx), s.ID, s.viewerID)
}

func (s *Session) raise(err *models.AppError) {
	if s.alerts != nil {
		s.alerts.Alert(models.AlertFrom(err, time.Now()))
	}
}
