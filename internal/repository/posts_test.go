package repository

import (
	"context"
	"errors"
	"testing"

	"animelight/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedRepository_FetchPosts(t *testing.T) {
	repo := NewFeedRepository(setupSQLite(t))
	seedPosts(t, repo, "author-1", 15)
	ctx := context.Background()

	tests := []struct {
		name        string
		offset      int
		limit       int
		wantFirst   string
		wantCount   int
		wantHasMore bool
	}{
		{name: "first page", offset: 0, limit: 10, wantFirst: "post-14", wantCount: 10, wantHasMore: true},
		{name: "short last page", offset: 10, limit: 10, wantFirst: "post-04", wantCount: 5, wantHasMore: false},
		{name: "exact fit", offset: 5, limit: 10, wantFirst: "post-09", wantCount: 10, wantHasMore: false},
		{name: "past the end", offset: 20, limit: 10, wantCount: 0, wantHasMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, hasMore, err := repo.FetchPosts(ctx, tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Len(t, rows, tt.wantCount)
			assert.Equal(t, tt.wantHasMore, hasMore)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantFirst, rows[0].ID)
			}
			for i := 1; i < len(rows); i++ {
				assert.False(t, rows[i].CreatedAt.After(rows[i-1].CreatedAt), "rows must be newest first")
			}
		})
	}
}

func TestFeedRepository_FetchPostDetail(t *testing.T) {
	repo := NewFeedRepository(setupSQLite(t))
	ids := seedPosts(t, repo, "author-1", 2)
	ctx := context.Background()
	db := repo.db

	require.NoError(t, db.Create(&[]models.PostImageRow{
		{PostID: ids[0], ImageURL: "https://cdn/1.png", Caption: "first"},
		{PostID: ids[0], ImageURL: "https://cdn/2.png"},
	}).Error)
	require.NoError(t, repo.InsertLike(ctx, ids[0], "viewer"))
	require.NoError(t, repo.InsertLike(ctx, ids[0], "someone"))
	_, err := repo.InsertComment(ctx, ids[0], "someone", "great")
	require.NoError(t, err)

	detail, err := repo.FetchPostDetail(ctx, ids[0], "viewer")
	require.NoError(t, err)
	assert.Equal(t, "author", detail.Author.Username)
	assert.Equal(t, "a.png", detail.Author.AvatarURL)
	require.Len(t, detail.Images, 2)
	assert.Equal(t, "https://cdn/1.png", detail.Images[0].URL)
	assert.Equal(t, "first", detail.Images[0].Caption)
	assert.Equal(t, 2, detail.LikeCount)
	assert.True(t, detail.ViewerLiked)
	assert.Equal(t, 1, detail.CommentCount)

	other, err := repo.FetchPostDetail(ctx, ids[1], "viewer")
	require.NoError(t, err)
	assert.Empty(t, other.Images)
	assert.NotNil(t, other.Images)
	assert.Zero(t, other.LikeCount)
	assert.False(t, other.ViewerLiked)
}

func TestFeedRepository_FetchPostDetailsMatchesSingle(t *testing.T) {
	repo := NewFeedRepository(setupSQLite(t))
	ids := seedPosts(t, repo, "author-1", 3)
	ctx := context.Background()

	require.NoError(t, repo.db.Create(&models.PostImageRow{PostID: ids[1], ImageURL: "https://cdn/x.png"}).Error)
	require.NoError(t, repo.InsertLike(ctx, ids[1], "viewer"))
	require.NoError(t, repo.InsertLike(ctx, ids[2], "other"))
	_, err := repo.InsertComment(ctx, ids[2], "other", "hi")
	require.NoError(t, err)

	batch, err := repo.FetchPostDetails(ctx, append(ids, "missing"), "viewer")
	require.NoError(t, err)
	require.Len(t, batch, 4)

	for _, id := range ids {
		single, err := repo.FetchPostDetail(ctx, id, "viewer")
		require.NoError(t, err)
		assert.Equal(t, single, batch[id], id)
	}
	assert.Zero(t, batch["missing"].LikeCount)
	assert.Empty(t, batch["missing"].Author.ID)
}

func TestFeedRepository_FetchPostDetailsEmpty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewFeedRepository(db)

	out, err := repo.FetchPostDetails(context.Background(), nil, "viewer")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedRepository_FetchPostsError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewFeedRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "posts" ORDER BY created_at DESC,\s?id DESC`).
		WillReturnError(errors.New("permission denied for table posts"))

	_, _, err := repo.FetchPosts(context.Background(), 10, 10)
	require.Error(t, err)
	assert.True(t, models.IsPermissionDenied(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedRepository_FetchPostDetailError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewFeedRepository(db)

	mock.ExpectQuery(`SELECT profiles\.\* FROM "profiles" JOIN posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "image"}).AddRow("a1", "author", ""))
	mock.ExpectQuery(`SELECT \* FROM "post_images"`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FetchPostDetail(context.Background(), "p1", "viewer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch images")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedRepository_GetPost(t *testing.T) {
	repo := NewFeedRepository(setupSQLite(t))
	ids := seedPosts(t, repo, "author-1", 1)

	row, err := repo.GetPost(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "author-1", row.UserID)

	_, err = repo.GetPost(context.Background(), "nope")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}
