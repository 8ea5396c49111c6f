// Package models contains the typed feed entities and the backend row shapes they are built from.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Profile is the denormalized author snapshot resolved when a post is fetched.
// It is not kept in sync after the fetch.
type Profile struct {
	ID        string `json:"id" msgpack:"id"`
	Username  string `json:"username" msgpack:"username"`
	AvatarURL string `json:"avatar_url" msgpack:"avatar_url"`
}

// PostImage is one image attached to a post. Slice order is display order.
type PostImage struct {
	URL     string `json:"url" msgpack:"url"`
	Caption string `json:"caption,omitempty" msgpack:"caption,omitempty"`
}

// Post is one feed entry with every field populated before it reaches the Feed Store.
type Post struct {
	ID              string      `json:"id" msgpack:"id"`
	AuthorID        string      `json:"author_id" msgpack:"author_id"`
	Body            string      `json:"body,omitempty" msgpack:"body,omitempty"`
	CreatedAt       time.Time   `json:"created_at" msgpack:"created_at"`
	Images          []PostImage `json:"images" msgpack:"images"`
	LikeCount       int         `json:"like_count" msgpack:"like_count"`
	IsLikedByViewer bool        `json:"is_liked" msgpack:"is_liked"`
	CommentCount    int         `json:"comment_count" msgpack:"comment_count"`
	AuthorProfile   Profile     `json:"author" msgpack:"author"`
}

// Clone returns a deep copy so callers never share the image slice with the store.
func (p Post) Clone() Post {
	out := p
	if p.Images != nil {
		out.Images = make([]PostImage, len(p.Images))
		copy(out.Images, p.Images)
	}
	return out
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// PlainBody returns the body with markup removed, as rendered on a feed card.
func (p Post) PlainBody() string {
	if p.Body == "" {
		return ""
	}
	return strings.TrimSpace(htmlTag.ReplaceAllString(p.Body, ""))
}

// RelativeAge formats the post age the way the feed card header shows it.
func (p Post) RelativeAge(now time.Time) string {
	if p.CreatedAt.IsZero() {
		return ""
	}
	hours := int(now.Sub(p.CreatedAt).Hours())
	switch {
	case hours < 1:
		return "Just now"
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	case hours < 168:
		return fmt.Sprintf("%dd ago", hours/24)
	default:
		return p.CreatedAt.Format("Jan 2, 2006")
	}
}

// FeedPage is the result of one page fetch.
type FeedPage struct {
	Posts     []Post `json:"posts"`
	HasMore   bool   `json:"has_more"`
	PageIndex int    `json:"page_index"`
}

// Notification types written by the mutation paths.
const (
	NotificationTypeLike    = "like"
	NotificationTypeComment = "comment"
)
