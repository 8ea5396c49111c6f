package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return signed
}

func TestParseAccessToken(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantID  string
		wantErr error
	}{
		{
			name:   "valid token",
			claims: jwt.MapClaims{"sub": "viewer-1", "email": "a@b.c", "exp": now.Add(time.Hour).Unix()},
			wantID: "viewer-1",
		},
		{
			name:   "no expiry",
			claims: jwt.MapClaims{"sub": "viewer-2"},
			wantID: "viewer-2",
		},
		{
			name:    "expired",
			claims:  jwt.MapClaims{"sub": "viewer-1", "exp": now.Add(-time.Minute).Unix()},
			wantErr: ErrTokenExpired,
		},
		{
			name:    "missing subject",
			claims:  jwt.MapClaims{"exp": now.Add(time.Hour).Unix()},
			wantErr: ErrMissingSubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := ParseAccessToken(signToken(t, tt.claims), now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, v.ID)
		})
	}
}

func TestParseAccessTokenGarbage(t *testing.T) {
	t.Parallel()
	_, err := ParseAccessToken("not-a-jwt", time.Now())
	assert.Error(t, err)
}

func TestResolveViewer(t *testing.T) {
	t.Parallel()
	now := time.Now()

	v, err := ResolveViewer("", "viewer-9", now)
	require.NoError(t, err)
	assert.Equal(t, "viewer-9", v.ID)

	token := signToken(t, jwt.MapClaims{"sub": "from-token"})
	v, err = ResolveViewer(token, "viewer-9", now)
	require.NoError(t, err)
	assert.Equal(t, "from-token", v.ID)

	_, err = ResolveViewer("", "", now)
	assert.ErrorIs(t, err, ErrNoViewer)
}
