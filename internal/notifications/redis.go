package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/redis/go-redis/v9"
)

// DefaultTopic is the channel carrying posts table changes.
const DefaultTopic = "realtime:public:posts"

// RedisSubscriber receives JSON change events from a redis pub/sub channel.
type RedisSubscriber struct {
	rdb *redis.Client
}

func NewRedisSubscriber(rdb *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb}
}

type redisSubscription struct {
	*stream
	ps *redis.PubSub
}

func (s *redisSubscription) Close() error {
	if !s.markClosed() {
		return nil
	}
	return s.ps.Close()
}

// Subscribe confirms the subscription with the server before returning, so no event
// published after Subscribe returns is missed.
func (r *RedisSubscriber) Subscribe(ctx context.Context, topic string, onEvent func(models.Event)) (Subscription, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("redis subscriber: no client")
	}
	ps := r.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{stream: newStream(), ps: ps}
	go func() {
		readErr := errReaderAborted
		defer func() { sub.finish(readErr) }()
		defer observability.RecoverAndReport(ctx, "realtime.redis_reader")
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				readErr = err
				return
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				observability.RealtimeEvents.WithLabelValues("invalid", "dropped").Inc()
				observability.GlobalLogger.WarnContext(ctx, "undecodable realtime payload",
					"channel", msg.Channel, "error", err.Error())
				continue
			}
			onEvent(ev)
		}
	}()
	return sub, nil
}

// Publisher writes change events onto the realtime channel.
type Publisher struct {
	rdb   *redis.Client
	topic string
}

func NewPublisher(rdb *redis.Client, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{rdb: rdb, topic: topic}
}

// PublishInsert announces that record was inserted into table.
func (p *Publisher) PublishInsert(ctx context.Context, table string, record any) error {
	if p.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	payload, err := json.Marshal(models.Event{
		Type:            models.EventInsert,
		Schema:          "public",
		Table:           table,
		Record:          raw,
		CommitTimestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, p.topic, string(payload)).Err()
}
