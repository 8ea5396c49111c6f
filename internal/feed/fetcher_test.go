package feed

import (
	"context"
	"errors"
	"testing"

	"animelight/internal/featureflags"
	"animelight/internal/models"
	"animelight/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(n int) *testutil.SourceStub {
	src := &testutil.SourceStub{
		Rows:    testutil.NewPostRows("author-1", n),
		Details: map[string]*models.PostDetail{},
	}
	for _, row := range src.Rows {
		src.Details[row.ID] = &models.PostDetail{
			Author:       models.Profile{ID: "author-1", Username: "mika", AvatarURL: "https://cdn/mika.png"},
			Images:       []models.PostImage{{URL: "https://cdn/" + row.ID + ".png"}},
			LikeCount:    3,
			ViewerLiked:  row.ID == "post-1",
			CommentCount: 2,
		}
	}
	return src
}

func TestFetcher_BatchedDetails(t *testing.T) {
	t.Parallel()
	src := newSource(15)
	f := NewFetcher(testutil.BatchSourceStub{SourceStub: src}, "viewer")

	page, err := f.FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page.Posts, 10)
	assert.True(t, page.HasMore)
	assert.Equal(t, 0, page.PageIndex)

	assert.EqualValues(t, 1, src.BatchCalls.Load())
	assert.Zero(t, src.DetailCalls.Load())

	p := page.Posts[1]
	assert.Equal(t, "post-1", p.ID)
	assert.Equal(t, "author-1", p.AuthorID)
	assert.Equal(t, "mika", p.AuthorProfile.Username)
	assert.Equal(t, 3, p.LikeCount)
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 2, p.CommentCount)
	require.Len(t, p.Images, 1)
	assert.Equal(t, "https://cdn/post-1.png", p.Images[0].URL)
}

func TestFetcher_FanOutWhenBatchingUnavailable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		source func(*testutil.SourceStub) PostSource
		flags  *featureflags.Manager
	}{
		{
			name:   "plain source",
			source: func(s *testutil.SourceStub) PostSource { return s },
		},
		{
			name:   "flag off",
			source: func(s *testutil.SourceStub) PostSource { return testutil.BatchSourceStub{SourceStub: s} },
			flags:  featureflags.NewManager("batched_details=off"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := newSource(15)
			f := NewFetcher(tt.source(src), "viewer", WithFeatureFlags(tt.flags), WithDetailConcurrency(3))

			page, err := f.FetchPage(context.Background(), 1)
			require.NoError(t, err)
			assert.Len(t, page.Posts, 5)
			assert.False(t, page.HasMore)
			assert.Equal(t, "post-10", page.Posts[0].ID)
			assert.EqualValues(t, 5, src.DetailCalls.Load())
			assert.Zero(t, src.BatchCalls.Load())
		})
	}
}

func TestFetcher_DetailFailureFailsPage(t *testing.T) {
	t.Parallel()
	src := newSource(10)
	src.FetchDetailFunc = func(_ context.Context, postID, _ string) (*models.PostDetail, error) {
		if postID == "post-4" {
			return nil, errors.New("permission denied for table post_likes")
		}
		return &models.PostDetail{}, nil
	}
	f := NewFetcher(src, "viewer")

	page, err := f.FetchPage(context.Background(), 0)
	require.Error(t, err)
	assert.Empty(t, page.Posts)
	assert.True(t, models.IsPermissionDenied(err))
}

func TestFetcher_BatchFailureFailsPage(t *testing.T) {
	t.Parallel()
	src := newSource(10)
	src.FetchDetailsFunc = func(context.Context, []string, string) (map[string]*models.PostDetail, error) {
		return nil, errors.New("timeout")
	}
	f := NewFetcher(testutil.BatchSourceStub{SourceStub: src}, "viewer")

	_, err := f.FetchPage(context.Background(), 0)
	assert.ErrorContains(t, err, "timeout")
}

func TestFetcher_MissingBatchEntryFailsPage(t *testing.T) {
	t.Parallel()
	src := newSource(3)
	src.FetchDetailsFunc = func(_ context.Context, ids []string, _ string) (map[string]*models.PostDetail, error) {
		return map[string]*models.PostDetail{ids[0]: {}}, nil
	}
	f := NewFetcher(testutil.BatchSourceStub{SourceStub: src}, "viewer")

	_, err := f.FetchPage(context.Background(), 0)
	assert.ErrorContains(t, err, "missing detail")
}

func TestFetcher_PageOffsets(t *testing.T) {
	t.Parallel()
	src := newSource(0)
	var gotOffset, gotLimit int
	src.FetchPostsFunc = func(_ context.Context, offset, limit int) ([]models.PostRow, bool, error) {
		gotOffset, gotLimit = offset, limit
		return nil, false, nil
	}
	f := NewFetcher(src, "viewer", WithPageSize(7))

	page, err := f.FetchPage(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.NotNil(t, page.Posts)
	assert.Equal(t, 21, gotOffset)
	assert.Equal(t, 7, gotLimit)
	assert.Equal(t, 7, f.PageSize())
}

func TestFetcher_PostsErrorSkipsDetails(t *testing.T) {
	t.Parallel()
	src := newSource(10)
	src.FetchPostsFunc = func(context.Context, int, int) ([]models.PostRow, bool, error) {
		return nil, false, errors.New("network down")
	}
	f := NewFetcher(src, "viewer")

	_, err := f.FetchPage(context.Background(), 0)
	require.Error(t, err)
	assert.Zero(t, src.DetailCalls.Load())
}
