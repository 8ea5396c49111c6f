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

	"go.opentelemetry.io/otel/attribute"
)

// Mutation kinds used in logs and metrics.
const (
	MutationLike    = "like"
	MutationUnlike  = "unlike"
	MutationComment = "comment"
)

var errLikeAborted = errors.New("like write aborted")

// DefaultMutationTimeout bounds one backend write issued for an optimistic change.
const DefaultMutationTimeout = 15 * time.Second

// Pending is an optimistic change waiting for its backend write.
type Pending struct {
	PostID string
	Kind   string

	done chan struct{}
	err  error
}

func newPending(postID, kind string) *Pending {
	return &Pending{PostID: postID, Kind: kind, done: make(chan struct{})}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the change is committed or rolled back.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the change settles and returns the write error, if any.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MutationEngine applies local-first changes to the Store and reconciles them with the backend.
type MutationEngine struct {
	store    *Store
	sink     MutationSink
	alerts   Alerter
	flags    *featureflags.Manager
	viewerID string
	logger   *observability.FeedLogger
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]int
	liking   map[string]struct{}
	wg       sync.WaitGroup
}

// NewMutationEngine creates the engine for one viewer. alerts and flags may be nil.
func NewMutationEngine(store *Store, sink MutationSink, viewerID string, alerts Alerter, flags *featureflags.Manager) *MutationEngine {
	return &MutationEngine{
		store:    store,
		sink:     sink,
		alerts:   alerts,
		flags:    flags,
		viewerID: viewerID,
		logger:   observability.NewFeedLogger(),
		timeout:  DefaultMutationTimeout,
		now:      time.Now,
		inFlight: make(map[string]int),
		liking:   make(map[string]struct{}),
	}
}

// applyOptimistic runs change against the post and returns a closure that undoes exactly
// what change did. ok is false when the post is not in the feed.
func (e *MutationEngine) applyOptimistic(postID string, change func(models.Post) (models.Post, func(models.Post) models.Post)) (undo func(), before models.Post, ok bool) {
	var inverse func(models.Post) models.Post
	ok = e.store.UpdatePost(postID, func(p models.Post) models.Post {
		before = p
		next, inv := change(p)
		inverse = inv
		return next
	})
	if !ok {
		return nil, models.Post{}, false
	}
	return func() { e.store.UpdatePost(postID, inverse) }, before, true
}

// likeChange flips the like state to !currentlyLiked and moves the count by one, never below zero.
func likeChange(currentlyLiked bool) func(models.Post) (models.Post, func(models.Post) models.Post) {
	return func(p models.Post) (models.Post, func(models.Post) models.Post) {
		prevLiked := p.IsLikedByViewer
		delta := 1
		if currentlyLiked {
			delta = -1
		}
		next := p
		next.IsLikedByViewer = !currentlyLiked
		next.LikeCount = max(0, p.LikeCount+delta)
		applied := next.LikeCount - p.LikeCount

		return next, func(cur models.Post) models.Post {
			cur.IsLikedByViewer = prevLiked
			cur.LikeCount = max(0, cur.LikeCount-applied)
			return cur
		}
	}
}

// ToggleLike flips the viewer's like immediately and writes it in the background.
// A failed write rolls the change back and raises an alert. While a like write for the
// post is outstanding further toggles are rejected with a conflict.
func (e *MutationEngine) ToggleLike(ctx context.Context, postID string, currentlyLiked bool) (*Pending, error) {
	kind := MutationLike
	if currentlyLiked {
		kind = MutationUnlike
	}

	if !e.beginLike(postID) {
		return nil, models.NewConflictError("A like update for this post is still in progress")
	}
	undo, before, ok := e.applyOptimistic(postID, likeChange(currentlyLiked))
	if !ok {
		e.endLike(postID)
		return nil, models.NewNotFoundError("Post", postID)
	}

	pending := newPending(postID, kind)
	var settleOnce sync.Once
	settle := func(err error) {
		settleOnce.Do(func() {
			e.endLike(postID)
			pending.finish(err)
		})
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer settle(errLikeAborted)
		defer observability.RecoverAndReport(ctx, "mutation."+kind)

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		span, wctx := observability.NewSpan(wctx, "feed.ToggleLike",
			attribute.String("post.id", postID),
			attribute.String("mutation.kind", kind),
		)
		defer span.End()

		var err error
		if currentlyLiked {
			err = e.sink.DeleteLike(wctx, postID, e.viewerID)
		} else {
			err = e.sink.InsertLike(wctx, postID, e.viewerID)
		}

		if err != nil {
			span.SetError(err)
			undo()
			e.rollback(wctx, kind, postID, "update like", err)
			settle(err)
			return
		}

		e.commit(wctx, kind, postID)
		if !currentlyLiked && before.AuthorID != "" && before.AuthorID != e.viewerID &&
			e.flags.EnabledOr(featureflags.LikeNotifications, e.viewerID, true) {
			e.notify(wctx, models.Notification{
				UserID:  before.AuthorID,
				ActorID: e.viewerID,
				PostID:  postID,
				Type:    models.NotificationTypeLike,
			})
		}
		settle(nil)
	}()

	return pending, nil
}

// ConfirmComment counts a comment that the backend has already stored.
func (e *MutationEngine) ConfirmComment(postID string) bool {
	return e.store.UpdatePost(postID, func(p models.Post) models.Post {
		p.CommentCount++
		return p
	})
}

// AddComment stores a comment, then counts it and notifies the post author.
// The count is never raised before the backend confirms the comment.
func (e *MutationEngine) AddComment(ctx context.Context, postID, body string) (*models.CommentRow, error) {
	if err := validation.ValidateCommentBody(body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	post, inFeed := e.store.Get(postID)

	span, ctx := observability.NewSpan(ctx, "feed.AddComment", attribute.String("post.id", postID))
	defer span.End()

	e.begin(postID)
	row, err := e.sink.InsertComment(ctx, postID, e.viewerID, body)
	e.end(postID)
	if err != nil {
		span.SetError(err)
		return nil, e.rollback(ctx, MutationComment, postID, "post comment", err)
	}

	if inFeed {
		e.ConfirmComment(postID)
	}
	e.commit(ctx, MutationComment, postID)

	if inFeed && post.AuthorID != "" && post.AuthorID != e.viewerID {
		e.notify(ctx, models.Notification{
			UserID:  post.AuthorID,
			ActorID: e.viewerID,
			PostID:  postID,
			Type:    models.NotificationTypeComment,
			Content: body,
		})
	}
	return row, nil
}

// InFlight reports whether a write for postID is outstanding.
func (e *MutationEngine) InFlight(postID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight[postID] > 0
}

// Wait blocks until every background write, including notifications, has finished.
func (e *MutationEngine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *MutationEngine) begin(postID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight[postID]++
}

func (e *MutationEngine) end(postID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLocked(postID)
}

// beginLike claims the post's like slot; false means a like write is still outstanding.
func (e *MutationEngine) beginLike(postID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.liking[postID]; busy {
		return false
	}
	e.liking[postID] = struct{}{}
	e.inFlight[postID]++
	return true
}

func (e *MutationEngine) endLike(postID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.liking, postID)
	e.endLocked(postID)
}

func (e *MutationEngine) endLocked(postID string) {
	if e.inFlight[postID] <= 1 {
		delete(e.inFlight, postID)
		return
	}
	e.inFlight[postID]--
}

func (e *MutationEngine) commit(ctx context.Context, kind, postID string) {
	observability.Mutations.WithLabelValues(kind, observability.OutcomeCommitted).Inc()
	e.logger.LogMutation(ctx, kind, postID, observability.OutcomeCommitted, nil)
}

func (e *MutationEngine) rollback(ctx context.Context, kind, postID, action string, err error) error {
	observability.Mutations.WithLabelValues(kind, observability.OutcomeRolledBack).Inc()
	e.logger.LogMutation(ctx, kind, postID, observability.OutcomeRolledBack, err)
	appErr := models.NewMutationError(action, err)
	if e.alerts != nil {
		e.alerts.Alert(models.AlertFrom(appErr, e.now()))
	}
	return appErr
}

// notify writes a notification without waiting for it; a failure is only logged.
func (e *MutationEngine) notify(ctx context.Context, n models.Notification) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer observability.RecoverAndReport(ctx, "notification")

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		if err := e.sink.InsertNotification(nctx, n); err != nil {
			observability.LogAsyncOperationError(nctx, "insert_notification", err, map[string]interface{}{
				"post_id": n.PostID,
				"type":    n.Type,
			})
		}
	}()
}
