package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

var (
	ErrListenerStarted = errors.New("realtime listener already started")
	ErrListenerStopped = errors.New("realtime listener stopped")
)

// ListenerConfig controls the realtime subscription.
type ListenerConfig struct {
	Topic          string
	Table          string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Table == "" {
		c.Table = "posts"
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// Listener holds the session's one realtime subscription. Every insert into the configured
// table bumps the Signal by one; duplicates delivered by the transport are counted again.
// A dropped subscription is reopened with exponential backoff until Stop.
type Listener struct {
	sub    Subscriber
	signal *Signal
	cfg    ListenerConfig
	logger *observability.RealtimeLogger

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewListener(sub Subscriber, signal *Signal, cfg ListenerConfig) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		sub:    sub,
		signal: signal,
		cfg:    cfg,
		logger: observability.NewRealtimeLogger(cfg.Topic),
		done:   make(chan struct{}),
	}
}

// Start opens the subscription. If the first attempt fails the error is returned and the
// listener keeps retrying in the background. ctx bounds the listener's whole lifetime.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrListenerStopped
	}
	if l.started {
		l.mu.Unlock()
		return ErrListenerStarted
	}
	l.started = true
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	sub, err := l.sub.Subscribe(ctx, l.cfg.Topic, l.handle)
	if err != nil {
		l.logger.LogError(ctx, "subscribe", err)
	} else {
		l.logger.LogLifecycle(ctx, "subscribed", nil)
	}

	go l.supervise(ctx, sub)

	if err != nil {
		return models.NewSubscriptionError(err)
	}
	return nil
}

// Stop closes the subscription and waits for the supervisor to exit. Only the first call
// does anything.
func (l *Listener) Stop(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		started := l.started
		cancel := l.cancel
		l.mu.Unlock()

		if !started {
			return
		}
		cancel()
		select {
		case <-l.done:
			l.logger.LogLifecycle(ctx, "stopped", nil)
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (l *Listener) handle(ev models.Event) {
	if !ev.IsInsertInto(l.cfg.Table) {
		observability.RealtimeEvents.WithLabelValues(ev.Type, "ignored").Inc()
		return
	}
	if l.signal.Increment() {
		observability.RealtimeEvents.WithLabelValues(ev.Type, "counted").Inc()
		return
	}
	observability.RealtimeEvents.WithLabelValues(ev.Type, "suppressed").Inc()
}

func (l *Listener) supervise(ctx context.Context, sub Subscription) {
	defer close(l.done)
	defer observability.RecoverAndReport(ctx, "realtime.supervisor")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.InitialBackoff
	bo.MaxInterval = l.cfg.MaxBackoff
	bo.Reset()

	for {
		if sub != nil {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-sub.Done():
				if err := sub.Err(); err != nil {
					l.logger.LogError(ctx, "dropped", err)
				} else {
					l.logger.LogLifecycle(ctx, "dropped", nil)
				}
				// Release the dropped connection before opening the next one.
				_ = sub.Close()
				sub = nil
			}
		}

		wait := bo.NextBackOff()
		l.logger.LogLifecycle(ctx, "resubscribe_scheduled", map[string]interface{}{"delay_ms": wait.Milliseconds()})
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		observability.RealtimeResubscribes.Inc()
		next, err := l.sub.Subscribe(ctx, l.cfg.Topic, l.handle)
		if err != nil {
			l.logger.LogError(ctx, "resubscribe", err)
			sub = nil
			continue
		}
		l.logger.LogLifecycle(ctx, "subscribed", nil)
		bo.Reset()
		sub = next
	}
}
