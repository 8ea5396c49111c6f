package repository

import (
	"context"
	"errors"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertLike records the like. Liking an already liked post succeeds without a second row.
func (r *FeedRepository) InsertLike(ctx context.Context, postID, userID string) error {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "InsertLike")
	defer span.End()

	like := models.PostLikeRow{PostID: postID, UserID: userID, CreatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like).Error
	if err != nil && !models.IsUniqueViolation(err) && !errors.Is(err, gorm.ErrDuplicatedKey) {
		span.SetError(err)
		return err
	}
	return nil
}

// DeleteLike removes the viewer's like. Deleting a missing like succeeds.
func (r *FeedRepository) DeleteLike(ctx context.Context, postID, userID string) error {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "DeleteLike")
	defer span.End()

	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.PostLikeRow{}).Error
	if err != nil {
		span.SetError(err)
	}
	return err
}

// InsertNotification writes one notification row for the target user.
func (r *FeedRepository) InsertNotification(ctx context.Context, n models.Notification) error {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "InsertNotification")
	defer span.End()

	row := models.NotificationRow{
		UserID:    n.UserID,
		ActorID:   n.ActorID,
		PostID:    n.PostID,
		Type:      n.Type,
		Content:   n.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// InsertComment persists a comment and returns the stored row.
func (r *FeedRepository) InsertComment(ctx context.Context, postID, userID, body string) (*models.CommentRow, error) {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "InsertComment")
	defer span.End()

	row := &models.CommentRow{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		span.SetError(err)
		return nil, err
	}
	return row, nil
}
