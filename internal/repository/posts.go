// Package repository implements the backend data-fetch and mutation calls on gorm.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedRepository reads and writes the backend tables behind the feed.
type FeedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// FetchPosts returns one window of base post rows, newest first.
// hasMore reports whether at least one row exists past the window.
func (r *FeedRepository) FetchPosts(ctx context.Context, offset, limit int) ([]models.PostRow, bool, error) {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "FetchPosts")
	defer span.End()
	span.AddAttributes(attribute.Int("feed.offset", offset), attribute.Int("feed.limit", limit))

	if limit <= 0 {
		return []models.PostRow{}, false, nil
	}

	var rows []models.PostRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		span.SetError(err)
		return nil, false, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}

// FetchPostDetail resolves author, images, counts and the viewer's like for one post.
func (r *FeedRepository) FetchPostDetail(ctx context.Context, postID, viewerID string) (*models.PostDetail, error) {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "FetchPostDetail")
	defer span.End()
	span.AddAttributes(attribute.String("post.id", postID))

	db := r.db.WithContext(ctx)
	detail := &models.PostDetail{Images: []models.PostImage{}}

	var author []models.ProfileRow
	if err := db.Table("profiles").
		Select("profiles.*").
		Joins("JOIN posts ON posts.user_id = profiles.id").
		Where("posts.id = ?", postID).
		Limit(1).
		Find(&author).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("fetch author: %w", err)
	}
	if len(author) > 0 {
		detail.Author = models.ProfileFromRow(author[0])
	}

	var images []models.PostImageRow
	if err := db.Where("post_id = ?", postID).Order("id ASC").Find(&images).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("fetch images: %w", err)
	}
	for _, img := range images {
		detail.Images = append(detail.Images, models.PostImage{URL: img.ImageURL, Caption: img.Caption})
	}

	var likes int64
	if err := db.Model(&models.PostLikeRow{}).Where("post_id = ?", postID).Count(&likes).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("count likes: %w", err)
	}
	detail.LikeCount = int(likes)

	if viewerID != "" {
		var mine int64
		if err := db.Model(&models.PostLikeRow{}).
			Where("post_id = ? AND user_id = ?", postID, viewerID).
			Count(&mine).Error; err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("check viewer like: %w", err)
		}
		detail.ViewerLiked = mine > 0
	}

	var comments int64
	if err := db.Model(&models.CommentRow{}).Where("post_id = ?", postID).Count(&comments).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("count comments: %w", err)
	}
	detail.CommentCount = int(comments)

	return detail, nil
}

type authorRow struct {
	PostID   string
	ID       string
	Username string
	Image    string
}

type countRow struct {
	PostID string
	Count  int
}

// FetchPostDetails resolves the details of many posts with one query per detail kind.
// Every requested id is present in the result.
func (r *FeedRepository) FetchPostDetails(ctx context.Context, postIDs []string, viewerID string) (map[string]*models.PostDetail, error) {
	span, ctx := observability.NewClientSpan(ctx, "postgresql", "FetchPostDetails")
	defer span.End()
	span.AddAttributes(attribute.Int("post.count", len(postIDs)))

	out := make(map[string]*models.PostDetail, len(postIDs))
	for _, id := range postIDs {
		out[id] = &models.PostDetail{Images: []models.PostImage{}}
	}
	if len(postIDs) == 0 {
		return out, nil
	}
	db := r.db.WithContext(ctx)

	var authors []authorRow
	if err := db.Table("posts").
		Select("posts.id AS post_id, profiles.id AS id, profiles.username AS username, profiles.image AS image").
		Joins("JOIN profiles ON profiles.id = posts.user_id").
		Where("posts.id IN ?", postIDs).
		Scan(&authors).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("fetch authors: %w", err)
	}
	for _, a := range authors {
		if d, ok := out[a.PostID]; ok {
			d.Author = models.Profile{ID: a.ID, Username: a.Username, AvatarURL: a.Image}
		}
	}

	var images []models.PostImageRow
	if err := db.Where("post_id IN ?", postIDs).Order("post_id").Order("id ASC").Find(&images).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("fetch images: %w", err)
	}
	for _, img := range images {
		if d, ok := out[img.PostID]; ok {
			d.Images = append(d.Images, models.PostImage{URL: img.ImageURL, Caption: img.Caption})
		}
	}

	var likeCounts []countRow
	if err := db.Model(&models.PostLikeRow{}).
		Select("post_id, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&likeCounts).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("count likes: %w", err)
	}
	for _, c := range likeCounts {
		if d, ok := out[c.PostID]; ok {
			d.LikeCount = c.Count
		}
	}

	if viewerID != "" {
		var liked []string
		if err := db.Model(&models.PostLikeRow{}).
			Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
			Pluck("post_id", &liked).Error; err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("check viewer likes: %w", err)
		}
		for _, id := range liked {
			if d, ok := out[id]; ok {
				d.ViewerLiked = true
			}
		}
	}

	var commentCounts []countRow
	if err := db.Model(&models.CommentRow{}).
		Select("post_id, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&commentCounts).Error; err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("count comments: %w", err)
	}
	for _, c := range commentCounts {
		if d, ok := out[c.PostID]; ok {
			d.CommentCount = c.Count
		}
	}

	return out, nil
}

// CreatePost inserts a post with its images in one transaction.
func (r *FeedRepository) CreatePost(ctx context.Context, post *models.PostRow, images []models.PostImageRow) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		for i := range images {
			images[i].PostID = post.ID
		}
		if len(images) > 0 {
			if err := tx.Create(&images).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertProfile writes a profile row, replacing username and avatar on conflict.
func (r *FeedRepository) UpsertProfile(ctx context.Context, profile *models.ProfileRow) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "image"}),
	}).Create(profile).Error
}

// GetPost returns one base post row.
func (r *FeedRepository) GetPost(ctx context.Context, postID string) (*models.PostRow, error) {
	var row models.PostRow
	if err := r.db.WithContext(ctx).Where("id = ?", postID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, err
	}
	return &row, nil
}
