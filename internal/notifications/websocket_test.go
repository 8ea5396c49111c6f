package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"animelight/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRealtimeServer accepts one subscribe frame, reports its topic, then writes frames.
func newRealtimeServer(t *testing.T, frames []string, topics chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		topics <- sub.Topic
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketSubscriber_ReadsEvents(t *testing.T) {
	t.Parallel()
	topics := make(chan string, 1)
	srv := newRealtimeServer(t, []string{
		`{"type":"INSERT","schema":"public","table":"posts","record":{"id":"p-9"}}`,
		`{"hello":"world"}`,
		`garbage`,
		`{"type":"INSERT","schema":"public","table":"posts","record":{"id":"p-10"}}`,
	}, topics)

	var got eventLog
	sub, err := NewWebsocketSubscriber(wsURL(srv), nil).Subscribe(context.Background(), DefaultTopic, got.add)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, <-topics)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, testEventuallyTimeout, testPollInterval)
	rec, err := got.snapshot()[1].PostRecord()
	require.NoError(t, err)
	assert.Equal(t, "p-10", rec.ID)

	require.NoError(t, sub.Close())
	<-sub.Done()
	assert.NoError(t, sub.Err())
}

func TestWebsocketSubscriber_ServerDropEndsSubscription(t *testing.T) {
	t.Parallel()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var sub subscribeFrame
		_ = conn.ReadJSON(&sub)
		_ = conn.Close()
	}))
	defer srv.Close()

	sub, err := NewWebsocketSubscriber(wsURL(srv), nil).Subscribe(context.Background(), "t", func(models.Event) {})
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(testEventuallyTimeout):
		t.Fatal("subscription did not notice the drop")
	}
	assert.Error(t, sub.Err())
}

func TestWebsocketSubscriber_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebsocketSubscriber(wsURL(srv), nil).Subscribe(context.Background(), "t", func(models.Event) {})
	assert.Error(t, err)
}
