package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"animelight/internal/database"
	"animelight/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// seedPosts inserts n posts by one author, post-00 being the oldest.
func seedPosts(t *testing.T, repo *FeedRepository, authorID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertProfile(ctx, &models.ProfileRow{ID: authorID, Username: "author", Image: "a.png"}))

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		body := fmt.Sprintf("<p>post %d</p>", i)
		row := &models.PostRow{
			ID:        fmt.Sprintf("post-%02d", i),
			Body:      &body,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
			UserID:    authorID,
		}
		require.NoError(t, repo.CreatePost(ctx, row, nil))
		ids = append(ids, row.ID)
	}
	return ids
}
