package feed

import (
	"context"
	"fmt"
	"time"

	"animelight/internal/featureflags"
	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/graph-gophers/dataloader"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the page capacity used when none is configured.
const DefaultPageSize = 10

// Fetcher builds feed pages: one base query, then every post's details through a per-page dataloader.
type Fetcher struct {
	source      PostSource
	batch       BatchDetailSource
	flags       *featureflags.Manager
	viewerID    string
	pageSize    int
	concurrency int
	wait        time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

func WithPageSize(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithDetailConcurrency bounds the per-post detail calls in flight when batching is unavailable.
func WithDetailConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithFeatureFlags(m *featureflags.Manager) FetcherOption {
	return func(f *Fetcher) { f.flags = m }
}

// NewFetcher creates a Fetcher. When source also implements BatchDetailSource, details are
// loaded with one query set per page unless the batched_details flag is off for the viewer.
func NewFetcher(source PostSource, viewerID string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:      source,
		viewerID:    viewerID,
		pageSize:    DefaultPageSize,
		concurrency: 4,
		wait:        time.Millisecond,
	}
	if b, ok := source.(BatchDetailSource); ok {
		f.batch = b
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) PageSize() int { return f.pageSize }

// FetchPage returns page pageIndex with every post fully populated. Any failed detail lookup fails the page.
func (f *Fetcher) FetchPage(ctx context.Context, pageIndex int) (models.FeedPage, error) {
	span, ctx := observability.NewSpan(ctx, "feed.FetchPage", attribute.Int("feed.page_index", pageIndex))
	defer span.End()

	rows, hasMore, err := f.source.FetchPosts(ctx, pageIndex*f.pageSize, f.pageSize)
	if err != nil {
		span.SetError(err)
		return models.FeedPage{}, fmt.Errorf("fetch posts: %w", err)
	}
	page := models.FeedPage{Posts: make([]models.Post, 0, len(rows)), HasMore: hasMore, PageIndex: pageIndex}
	if len(rows) == 0 {
		return page, nil
	}

	loader := dataloader.NewBatchedLoader(f.batchFn,
		dataloader.WithWait(f.wait),
		dataloader.WithBatchCapacity(len(rows)),
	)
	thunks := make([]dataloader.Thunk, len(rows))
	for i, row := range rows {
		thunks[i] = loader.Load(ctx, dataloader.StringKey(row.ID))
	}

	for i, row := range rows {
		data, err := thunks[i]()
		if err != nil {
			span.SetError(err)
			return models.FeedPage{}, fmt.Errorf("fetch detail for post %s: %w", row.ID, err)
		}
		detail, ok := data.(*models.PostDetail)
		if !ok || detail == nil {
			err := fmt.Errorf("no detail returned for post %s", row.ID)
			span.SetError(err)
			return models.FeedPage{}, err
		}
		page.Posts = append(page.Posts, models.NormalizePost(row, *detail))
	}
	span.AddAttributes(attribute.Int("feed.post_count", len(page.Posts)))
	return page, nil
}

func (f *Fetcher) batchFn(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key.String()
	}

	span, ctx := observability.NewSpan(ctx, "feed.FetchDetails", attribute.Int("feed.detail_count", len(ids)))
	defer span.End()

	var details map[string]*models.PostDetail
	var err error
	if f.batch != nil && f.flags.EnabledOr(featureflags.BatchedDetails, f.viewerID, true) {
		details, err = f.batch.FetchPostDetails(ctx, ids, f.viewerID)
	} else {
		details, err = f.fanOut(ctx, ids)
	}

	results := make([]*dataloader.Result, len(keys))
	if err != nil {
		span.SetError(err)
		for i := range results {
			results[i] = &dataloader.Result{Error: err}
		}
		return results
	}
	for i, id := range ids {
		d, ok := details[id]
		if !ok || d == nil {
			results[i] = &dataloader.Result{Error: fmt.Errorf("missing detail for post %s", id)}
			continue
		}
		results[i] = &dataloader.Result{Data: d}
	}
	return results
}

// fanOut issues one FetchPostDetail per post, at most concurrency at a time.
func (f *Fetcher) fanOut(ctx context.Context, ids []string) (map[string]*models.PostDetail, error) {
	out := make([]*models.PostDetail, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			d, err := f.source.FetchPostDetail(gctx, id, f.viewerID)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	details := make(map[string]*models.PostDetail, len(ids))
	for i, id := range ids {
		details[id] = out[i]
	}
	return details, nil
}
