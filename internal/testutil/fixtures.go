// Package testutil provides shared test doubles and fixtures for feed tests.
package testutil

import (
	"fmt"
	"time"

	"animelight/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// BaseTime is the creation time of the newest fixture post.
var BaseTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// NewPost builds a fully populated post with fake content.
func NewPost(overrides ...func(*models.Post)) models.Post {
	authorID := gofakeit.UUID()
	p := models.Post{
		ID:        gofakeit.UUID(),
		AuthorID:  authorID,
		Body:      "<p>" + gofakeit.Sentence(8) + "</p>",
		CreatedAt: BaseTime,
		Images: []models.PostImage{
			{URL: fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID()), Caption: gofakeit.Word()},
		},
		LikeCount:    gofakeit.Number(0, 50),
		CommentCount: gofakeit.Number(0, 10),
		AuthorProfile: models.Profile{
			ID:        authorID,
			Username:  gofakeit.Username(),
			AvatarURL: gofakeit.URL(),
		},
	}
	for _, o := range overrides {
		o(&p)
	}
	return p
}

// NewPosts builds n posts, newest first, with ids prefix-0 .. prefix-(n-1).
func NewPosts(prefix string, n int) []models.Post {
	out := make([]models.Post, n)
	for i := range out {
		out[i] = NewPost(func(p *models.Post) {
			p.ID = fmt.Sprintf("%s-%d", prefix, i)
			p.CreatedAt = BaseTime.Add(-time.Duration(i) * time.Minute)
		})
	}
	return out
}

// NewPostRows builds n base rows newest first, ids post-0 .. post-(n-1), all by authorID.
func NewPostRows(authorID string, n int) []models.PostRow {
	out := make([]models.PostRow, n)
	for i := range out {
		body := gofakeit.Sentence(6)
		out[i] = models.PostRow{
			ID:        fmt.Sprintf("post-%d", i),
			Body:      &body,
			CreatedAt: BaseTime.Add(-time.Duration(i) * time.Minute),
			UserID:    authorID,
		}
	}
	return out
}

// WithLikes sets like state on a fixture post.
func WithLikes(count int, liked bool) func(*models.Post) {
	return func(p *models.Post) {
		p.LikeCount = count
		p.IsLikedByViewer = liked
	}
}

// WithAuthor sets the author of a fixture post.
func WithAuthor(id string) func(*models.Post) {
	return func(p *models.Post) {
		p.AuthorID = id
		p.AuthorProfile.ID = id
	}
}
