package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostRow is the base posts row as stored by the backend.
type PostRow struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Body      *string   `gorm:"type:text" json:"body"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
}

// TableName pins the backend table name.
func (PostRow) TableName() string { return "posts" }

// ProfileRow is a row of the profiles table.
type ProfileRow struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

func (ProfileRow) TableName() string { return "profiles" }

// PostImageRow is a row of the post_images table. Insertion order is display order.
type PostImageRow struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PostID   string `gorm:"not null;index" json:"post_id"`
	ImageURL string `gorm:"not null" json:"image_url"`
	Caption  string `json:"caption"`
}

func (PostImageRow) TableName() string { return "post_images" }

// PostLikeRow is a row of the post_likes table.
type PostLikeRow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"not null;uniqueIndex:idx_post_likes_post_user" json:"post_id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_post_likes_post_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostLikeRow) TableName() string { return "post_likes" }

// CommentRow is a row of the comments table.
type CommentRow struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string    `gorm:"not null;index" json:"post_id"`
	UserID    string    `gorm:"not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (CommentRow) TableName() string { return "comments" }

// NotificationRow is a row of the notifications table.
type NotificationRow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	ActorID   string    `gorm:"not null" json:"actor_id"`
	PostID    string    `json:"post_id"`
	Type      string    `gorm:"not null" json:"type"`
	Content   string    `json:"content,omitempty"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (NotificationRow) TableName() string { return "notifications" }

// Notification is the payload of a notification write.
type Notification struct {
	UserID  string
	ActorID string
	PostID  string
	Type    string
	Content string
}

// PostDetail is everything resolved per post on top of the base row.
type PostDetail struct {
	Author       Profile
	Images       []PostImage
	LikeCount    int
	ViewerLiked  bool
	CommentCount int
}

// NormalizePost is the single mapping from fetch-boundary rows to a feed Post.
func NormalizePost(row PostRow, detail PostDetail) Post {
	p := Post{
		ID:              row.ID,
		AuthorID:        row.UserID,
		CreatedAt:       row.CreatedAt,
		Images:          detail.Images,
		LikeCount:       detail.LikeCount,
		IsLikedByViewer: detail.ViewerLiked,
		CommentCount:    detail.CommentCount,
		AuthorProfile:   detail.Author,
	}
	if row.Body != nil {
		p.Body = *row.Body
	}
	if p.Images == nil {
		p.Images = []PostImage{}
	}
	if p.LikeCount < 0 {
		p.LikeCount = 0
	}
	if p.CommentCount < 0 {
		p.CommentCount = 0
	}
	if p.AuthorProfile.ID == "" {
		p.AuthorProfile.ID = row.UserID
	}
	return p
}

// ProfileFromRow maps a profiles row.
func ProfileFromRow(r ProfileRow) Profile {
	return Profile{ID: r.ID, Username: r.Username, AvatarURL: r.Image}
}

// ProfileRef decodes a joined profile that arrives either as an object or as
// a one-element array.
type ProfileRef struct {
	Profile *ProfileRow
}

// UnmarshalJSON accepts null, an object or an array of objects.
func (r *ProfileRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.Profile = nil
		return nil
	}
	if data[0] == '[' {
		var list []ProfileRow
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode profile list: %w", err)
		}
		if len(list) == 0 {
			r.Profile = nil
			return nil
		}
		r.Profile = &list[0]
		return nil
	}
	var one ProfileRow
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	r.Profile = &one
	return nil
}

// MarshalJSON writes the profile as a plain object.
func (r ProfileRef) MarshalJSON() ([]byte, error) {
	if r.Profile == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.Profile)
}

// Change event types.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is a backend row-change notification.
type Event struct {
	Type            string          `json:"type"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// IsInsertInto reports whether the event is a row insert into table.
func (e Event) IsInsertInto(table string) bool {
	return strings.EqualFold(e.Type, EventInsert) && e.Table == table
}

// RealtimePostRecord is the posts row carried by an insert event.
type RealtimePostRecord struct {
	ID        string     `json:"id"`
	Body      *string    `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	UserID    string     `json:"user_id"`
	Profiles  ProfileRef `json:"profiles"`
}

// PostRecord decodes the event record as a posts row.
func (e Event) PostRecord() (*RealtimePostRecord, error) {
	if len(e.Record) == 0 {
		return nil, fmt.Errorf("event has no record")
	}
	var rec RealtimePostRecord
	if err := json.Unmarshal(e.Record, &rec); err != nil {
		return nil, fmt.Errorf("decode post record: %w", err)
	}
	return &rec, nil
}
