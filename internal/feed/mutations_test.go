package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"animelight/internal/featureflags"
	"animelight/internal/models"
	"animelight/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testViewer = "viewer-1"

type mutationFixture struct {
	engine *MutationEngine
	store  *Store
	sink   *testutil.MutationSinkStub
	alerts *AlertBuffer
}

func newMutationFixture(posts ...models.Post) *mutationFixture {
	f := &mutationFixture{
		store:  NewStore(),
		sink:   testutil.NewMutationSinkStub(),
		alerts: NewAlertBuffer(10),
	}
	f.store.ReplaceAll(posts)
	f.engine = NewMutationEngine(f.store, f.sink, testViewer, f.alerts, nil)
	return f
}

func (f *mutationFixture) post(t *testing.T, id string) models.Post {
	t.Helper()
	p, ok := f.store.Get(id)
	require.True(t, ok)
	return p
}

func waitAll(t *testing.T, e *MutationEngine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestToggleLike_AppliesBeforeBackendConfirms(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(4, false)))
	f.sink.Gate = make(chan struct{})

	pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
	require.NoError(t, err)

	p := f.post(t, "p1")
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 5, p.LikeCount)
	assert.True(t, f.engine.InFlight("p1"))

	close(f.sink.Gate)
	require.NoError(t, pending.Wait(context.Background()))
	waitAll(t, f.engine)

	assert.False(t, f.engine.InFlight("p1"))
	assert.True(t, f.sink.Liked("p1", testViewer))
	p = f.post(t, "p1")
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 5, p.LikeCount)
}

func TestToggleLike_Unlike(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(3, true)))
	f.sink.Likes["p1/"+testViewer] = true

	pending, err := f.engine.ToggleLike(context.Background(), "p1", true)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(context.Background()))
	waitAll(t, f.engine)

	p := f.post(t, "p1")
	assert.False(t, p.IsLikedByViewer)
	assert.Equal(t, 2, p.LikeCount)
	assert.False(t, f.sink.Liked("p1", testViewer))
	assert.Empty(t, f.sink.SentNotifications(), "unlike never notifies")
}

func TestToggleLike_UnlikeAtZeroClamps(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(0, true)))

	pending, err := f.engine.ToggleLike(context.Background(), "p1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, f.post(t, "p1").LikeCount)
	require.NoError(t, pending.Wait(context.Background()))
	assert.Equal(t, 0, f.post(t, "p1").LikeCount)
}

func TestToggleLike_FailureRollsBackAndAlerts(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(7, false)))
	f.sink.LikeErr = errors.New("connection reset")

	pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
	require.NoError(t, err)
	require.EqualError(t, pending.Wait(context.Background()), "connection reset")
	waitAll(t, f.engine)

	p := f.post(t, "p1")
	assert.False(t, p.IsLikedByViewer)
	assert.Equal(t, 7, p.LikeCount)

	alerts := f.alerts.Drain()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.CodeMutationFailed, alerts[0].Code)
	assert.Equal(t, "Failed to update like", alerts[0].Message)
	assert.Empty(t, f.sink.SentNotifications())
}

func TestToggleLike_RejectsOverlappingToggle(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(5, false)))
	f.sink.Gate = make(chan struct{})
	f.sink.LikeErr = errors.New("timeout")

	first, err := f.engine.ToggleLike(context.Background(), "p1", false)
	require.NoError(t, err)

	second, err := f.engine.ToggleLike(context.Background(), "p1", true)
	assert.Nil(t, second)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeConflict, appErr.Code)

	p := f.post(t, "p1")
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 6, p.LikeCount)

	close(f.sink.Gate)
	require.Error(t, first.Wait(context.Background()))
	p = f.post(t, "p1")
	assert.False(t, p.IsLikedByViewer)
	assert.Equal(t, 5, p.LikeCount)
	assert.False(t, f.engine.InFlight("p1"))

	f.sink.LikeErr = nil
	third, err := f.engine.ToggleLike(context.Background(), "p1", false)
	require.NoError(t, err)
	require.NoError(t, third.Wait(context.Background()))
	waitAll(t, f.engine)
	p = f.post(t, "p1")
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 6, p.LikeCount)
}

func TestToggleLike_RollbackClampedUnlikeRestoresZero(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(0, true)))
	f.sink.LikeErr = errors.New("boom")

	pending, err := f.engine.ToggleLike(context.Background(), "p1", true)
	require.NoError(t, err)
	require.Error(t, pending.Wait(context.Background()))

	p := f.post(t, "p1")
	assert.True(t, p.IsLikedByViewer)
	assert.Equal(t, 0, p.LikeCount)
}

func TestToggleLike_UnknownPost(t *testing.T) {
	t.Parallel()
	f := newMutationFixture()

	pending, err := f.engine.ToggleLike(context.Background(), "missing", false)
	assert.Nil(t, pending)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
	assert.Zero(t, f.sink.LikeCalls.Load())
}

func TestToggleLike_Notifications(t *testing.T) {
	t.Parallel()

	t.Run("notifies the author of another user's post", func(t *testing.T) {
		f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithAuthor("author-9"), testutil.WithLikes(0, false)))
		pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
		require.NoError(t, err)
		require.NoError(t, pending.Wait(context.Background()))
		waitAll(t, f.engine)

		assert.Equal(t, []models.Notification{{
			UserID:  "author-9",
			ActorID: testViewer,
			PostID:  "p1",
			Type:    models.NotificationTypeLike,
		}}, f.sink.SentNotifications())
	})

	t.Run("liking your own post is silent", func(t *testing.T) {
		f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithAuthor(testViewer), testutil.WithLikes(0, false)))
		pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
		require.NoError(t, err)
		require.NoError(t, pending.Wait(context.Background()))
		waitAll(t, f.engine)
		assert.Empty(t, f.sink.SentNotifications())
	})

	t.Run("flag disables like notifications", func(t *testing.T) {
		f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithAuthor("author-9"), testutil.WithLikes(0, false)))
		f.engine.flags = featureflags.NewManager(featureflags.LikeNotifications + "=off")
		pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
		require.NoError(t, err)
		require.NoError(t, pending.Wait(context.Background()))
		waitAll(t, f.engine)
		assert.Empty(t, f.sink.SentNotifications())
	})

	t.Run("notification failure keeps the like", func(t *testing.T) {
		f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithAuthor("author-9"), testutil.WithLikes(2, false)))
		f.sink.NotificationErr = errors.New("notifications table missing")
		pending, err := f.engine.ToggleLike(context.Background(), "p1", false)
		require.NoError(t, err)
		require.NoError(t, pending.Wait(context.Background()))
		waitAll(t, f.engine)

		p := f.post(t, "p1")
		assert.True(t, p.IsLikedByViewer)
		assert.Equal(t, 3, p.LikeCount)
		assert.Empty(t, f.alerts.Drain())
	})
}

func TestToggleLike_OutlivesCallerContext(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }, testutil.WithLikes(1, false)))
	f.sink.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	pending, err := f.engine.ToggleLike(ctx, "p1", false)
	require.NoError(t, err)
	cancel()
	close(f.sink.Gate)

	require.NoError(t, pending.Wait(context.Background()))
	assert.True(t, f.sink.Liked("p1", testViewer))
	assert.Equal(t, 2, f.post(t, "p1").LikeCount)
}

func TestAddComment(t *testing.T) {
	t.Parallel()

	t.Run("counts after confirmation and notifies the author", func(t *testing.T) {
		post := testutil.NewPost(func(p *models.Post) {
			p.ID = "p1"
			p.CommentCount = 2
		}, testutil.WithAuthor("author-9"))
		f := newMutationFixture(post)

		row, err := f.engine.AddComment(context.Background(), "p1", "nice shot")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "nice shot", row.Content)
		assert.Equal(t, 3, f.post(t, "p1").CommentCount)

		waitAll(t, f.engine)
		assert.Equal(t, []models.Notification{{
			UserID:  "author-9",
			ActorID: testViewer,
			PostID:  "p1",
			Type:    models.NotificationTypeComment,
			Content: "nice shot",
		}}, f.sink.SentNotifications())
	})

	t.Run("failure leaves the count and alerts", func(t *testing.T) {
		post := testutil.NewPost(func(p *models.Post) {
			p.ID = "p1"
			p.CommentCount = 2
		})
		f := newMutationFixture(post)
		f.sink.CommentErr = errors.New("insert failed")

		_, err := f.engine.AddComment(context.Background(), "p1", "hello")
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeMutationFailed, appErr.Code)
		assert.Equal(t, 2, f.post(t, "p1").CommentCount)

		alerts := f.alerts.Drain()
		require.Len(t, alerts, 1)
		assert.Equal(t, "Failed to post comment", alerts[0].Message)
	})

	t.Run("rejects empty and oversized bodies", func(t *testing.T) {
		f := newMutationFixture(testutil.NewPost(func(p *models.Post) { p.ID = "p1" }))
		for _, body := range []string{"", "   ", strings.Repeat("x", 2001)} {
			_, err := f.engine.AddComment(context.Background(), "p1", body)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeValidation, appErr.Code)
		}
		assert.Empty(t, f.alerts.Drain())
	})

	t.Run("post outside the feed is stored without counting", func(t *testing.T) {
		f := newMutationFixture()
		row, err := f.engine.AddComment(context.Background(), "elsewhere", "hi")
		require.NoError(t, err)
		assert.Equal(t, "elsewhere", row.PostID)
		waitAll(t, f.engine)
		assert.Empty(t, f.sink.SentNotifications())
	})
}

func TestConfirmComment(t *testing.T) {
	t.Parallel()
	f := newMutationFixture(testutil.NewPost(func(p *models.Post) {
		p.ID = "p1"
		p.CommentCount = 0
	}))
	assert.True(t, f.engine.ConfirmComment("p1"))
	assert.Equal(t, 1, f.post(t, "p1").CommentCount)
	assert.False(t, f.engine.ConfirmComment("missing"))
}
