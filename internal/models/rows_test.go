package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRef_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		wantNil  bool
		username string
	}{
		{"Object", `{"id":"u1","username":"rei","image":"a.png"}`, false, "rei"},
		{"Array", `[{"id":"u1","username":"asuka"}]`, false, "asuka"},
		{"EmptyArray", `[]`, true, ""},
		{"Null", `null`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref ProfileRef
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &ref))
			if tt.wantNil {
				assert.Nil(t, ref.Profile)
				return
			}
			require.NotNil(t, ref.Profile)
			assert.Equal(t, tt.username, ref.Profile.Username)
		})
	}
}

func TestProfileRef_InvalidJSON(t *testing.T) {
	t.Parallel()
	var ref ProfileRef
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &ref))
}

func TestEvent_PostRecord(t *testing.T) {
	t.Parallel()
	raw := `{"type":"INSERT","schema":"public","table":"posts",
		"record":{"id":"p1","user_id":"u1","body":null,"profiles":[{"id":"u1","username":"shinji"}]}}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.True(t, ev.IsInsertInto("posts"))
	assert.False(t, ev.IsInsertInto("comments"))

	rec, err := ev.PostRecord()
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ID)
	assert.Nil(t, rec.Body)
	require.NotNil(t, rec.Profiles.Profile)
	assert.Equal(t, "shinji", rec.Profiles.Profile.Username)
}

func TestEvent_PostRecordMissing(t *testing.T) {
	t.Parallel()
	_, err := Event{Type: EventInsert, Table: "posts"}.PostRecord()
	assert.Error(t, err)
}
