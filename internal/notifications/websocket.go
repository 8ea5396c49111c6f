package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/gorilla/websocket"
)

const dialTimeout = 10 * time.Second

// WebsocketSubscriber receives change events from a realtime websocket endpoint. After
// connecting it sends {"type":"subscribe","topic":...} and reads one JSON event per frame.
type WebsocketSubscriber struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func NewWebsocketSubscriber(url string, header http.Header) *WebsocketSubscriber {
	return &WebsocketSubscriber{
		URL:    url,
		Header: header,
		Dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

type subscribeFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type websocketSubscription struct {
	*stream
	conn *websocket.Conn
}

func (s *websocketSubscription) Close() error {
	if !s.markClosed() {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (w *WebsocketSubscriber) Subscribe(ctx context.Context, topic string, onEvent func(models.Event)) (Subscription, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, w.URL, w.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.URL, err)
	}
	if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", Topic: topic}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &websocketSubscription{stream: newStream(), conn: conn}
	go func() {
		readErr := errReaderAborted
		defer func() { sub.finish(readErr) }()
		defer observability.RecoverAndReport(ctx, "realtime.websocket_reader")
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr = err
				return
			}
			var ev models.Event
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
				observability.RealtimeEvents.WithLabelValues("invalid", "dropped").Inc()
				continue
			}
			onEvent(ev)
		}
	}()
	return sub, nil
}
