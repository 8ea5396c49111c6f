package feed

import (
	"sync"

	"animelight/internal/models"
)

// AlertBuffer keeps the most recent alerts until the UI drains them.
type AlertBuffer struct {
	mu        sync.Mutex
	items     []models.Alert
	max       int
	listeners []func(models.Alert)
}

// NewAlertBuffer keeps at most max alerts, dropping the oldest.
func NewAlertBuffer(max int) *AlertBuffer {
	if max <= 0 {
		max = 50
	}
	return &AlertBuffer{max: max}
}

func (b *AlertBuffer) Alert(a models.Alert) {
	b.mu.Lock()
	b.items = append(b.items, a)
	if over := len(b.items) - b.max; over > 0 {
		b.items = append([]models.Alert(nil), b.items[over:]...)
	}
	listeners := b.listeners
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(a)
	}
}

// OnAlert registers fn to run for every alert after it is buffered.
func (b *AlertBuffer) OnAlert(fn func(models.Alert)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Drain returns the buffered alerts oldest first and empties the buffer.
func (b *AlertBuffer) Drain() []models.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []models.Alert{}
	}
	return out
}
