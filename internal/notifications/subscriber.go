package notifications

import (
	"context"
	"errors"
	"sync/atomic"

	"animelight/internal/models"
)

// Subscription is one open change-event stream.
type Subscription interface {
	// Done is closed when the stream ends, either by Close or by a transport failure.
	Done() <-chan struct{}
	// Err returns the failure that ended the stream, or nil after Close.
	Err() error
	Close() error
}

// Subscriber opens change-event streams for a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, onEvent func(models.Event)) (Subscription, error)
}

// errReaderAborted ends a stream whose reader stopped without a transport error.
var errReaderAborted = errors.New("realtime reader aborted")

// stream is the Subscription bookkeeping shared by the transports.
type stream struct {
	done    chan struct{}
	err     error
	closing atomic.Bool
}

func newStream() *stream {
	return &stream{done: make(chan struct{})}
}

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// finish records err unless the stream was closed on purpose, then closes Done.
// It must be called exactly once, by the reader goroutine.
func (s *stream) finish(err error) {
	if s.closing.Load() {
		err = nil
	}
	s.err = err
	close(s.done)
}

// markClosed reports false if the stream was already closed.
func (s *stream) markClosed() bool {
	return s.closing.CompareAndSwap(false, true)
}
