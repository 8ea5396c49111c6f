package feed

import (
	"context"
	"sync"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"
)

// Page kinds used in logs and metrics.
const (
	KindInitial = "initial"
	KindMore    = "more"
)

// PagerState is a read-only view of the pagination variables.
type PagerState struct {
	PageIndex     int  `json:"page_index"`
	HasMore       bool `json:"has_more"`
	IsLoadingMore bool `json:"is_loading_more"`
	IsRefreshing  bool `json:"is_refreshing"`
}

// Pager is the Pagination Controller. Results of a fetch that was overtaken by a newer
// LoadInitial or by Stop are discarded instead of applied.
type Pager struct {
	store    *Store
	fetcher  PageFetcher
	snapshot SnapshotWriter
	alerts   Alerter
	logger   *observability.FeedLogger
	pageSize int
	now      func() time.Time

	mu          sync.Mutex
	pageIndex   int
	hasMore     bool
	loadingMore bool
	refreshing  bool
	stopped     bool
	epoch       uint64
}

// NewPager creates a Pagination Controller. snapshot and alerts may be nil.
func NewPager(store *Store, fetcher PageFetcher, pageSize int, snapshot SnapshotWriter, alerts Alerter) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		store:    store,
		fetcher:  fetcher,
		snapshot: snapshot,
		alerts:   alerts,
		logger:   observability.NewFeedLogger(),
		pageSize: pageSize,
		now:      time.Now,
		hasMore:  true,
	}
}

func (p *Pager) State() PagerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PagerState{
		PageIndex:     p.pageIndex,
		HasMore:       p.hasMore,
		IsLoadingMore: p.loadingMore,
		IsRefreshing:  p.refreshing,
	}
}

// LoadInitial fetches page 0 and replaces the whole feed with it, then snapshots the feed.
// On failure the feed and the pagination state are left as they were.
func (p *Pager) LoadInitial(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.epoch++
	epoch := p.epoch
	p.refreshing = true
	p.loadingMore = false
	p.mu.Unlock()

	done := observability.TrackPageFetch(KindInitial)
	page, err := p.fetcher.FetchPage(ctx, 0)

	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		done(observability.OutcomeDiscarded)
		p.logger.LogPageDiscarded(ctx, KindInitial, 0)
		return nil
	}
	p.refreshing = false
	if err != nil {
		p.mu.Unlock()
		done(observability.OutcomeError)
		return p.fail(ctx, KindInitial, 0, err)
	}
	p.store.ReplaceAll(page.Posts)
	p.pageIndex = 0
	p.hasMore = p.more(page)
	hasMore := p.hasMore
	p.mu.Unlock()

	done(observability.OutcomeSuccess)
	p.logger.LogPageLoaded(ctx, KindInitial, 0, len(page.Posts), hasMore)

	if p.snapshot != nil {
		if err := p.snapshot.Snapshot(ctx, page.Posts); err != nil {
			p.logger.LogCacheError(ctx, "snapshot", err)
		}
	}
	return nil
}

// LoadMore fetches the next page and appends it. It reports false without fetching when a
// LoadMore or LoadInitial is already running or the feed is exhausted.
func (p *Pager) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.stopped || p.loadingMore || p.refreshing || !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}
	p.loadingMore = true
	next := p.pageIndex + 1
	epoch := p.epoch
	p.mu.Unlock()

	done := observability.TrackPageFetch(KindMore)
	page, err := p.fetcher.FetchPage(ctx, next)

	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		done(observability.OutcomeDiscarded)
		p.logger.LogPageDiscarded(ctx, KindMore, next)
		return true, nil
	}
	p.loadingMore = false
	if err != nil {
		p.mu.Unlock()
		done(observability.OutcomeError)
		return true, p.fail(ctx, KindMore, next, err)
	}
	p.store.AppendPage(page.Posts)
	p.pageIndex = next
	p.hasMore = p.more(page)
	hasMore := p.hasMore
	p.mu.Unlock()

	done(observability.OutcomeSuccess)
	p.logger.LogPageLoaded(ctx, KindMore, next, len(page.Posts), hasMore)
	return true, nil
}

// Stop makes every in-flight and future load a no-op.
func (p *Pager) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.epoch++
	p.loadingMore = false
	p.refreshing = false
}

// more applies the exhaustion rule: a short page ends the feed even if the backend claims otherwise.
func (p *Pager) more(page models.FeedPage) bool {
	return page.HasMore && len(page.Posts) >= p.pageSize
}

func (p *Pager) fail(ctx context.Context, kind string, pageIndex int, err error) error {
	p.logger.LogFetchError(ctx, kind, pageIndex, err)
	appErr := models.ClassifyFetchError(err)
	if p.alerts != nil {
		p.alerts.Alert(models.AlertFrom(appErr, p.now()))
	}
	observability.ReportError(ctx, "feed."+kind, err)
	return appErr
}
