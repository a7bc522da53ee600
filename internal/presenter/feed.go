package presenter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultNoticeLimit bounds the number of undelivered notices kept by a Feed.
const DefaultNoticeLimit = 50

type Notice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Feed records cart change signals as a version counter and queues notices until drained.
type Feed struct {
	version atomic.Uint64

	mu      sync.Mutex
	notices []Notice
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewFeed creates a feed keeping at most limit notices; older ones are dropped first.
func NewFeed(limit int, logger *slog.Logger) *Feed {
	if limit <= 0 {
		limit = DefaultNoticeLimit
	}
	return &Feed{
		limit:  limit,
		logger: logger.With("component", "notices"),
		now:    time.Now,
	}
}

// CartChanged bumps the version so clients know to re-read the cart.
func (f *Feed) CartChanged(context.Context) {
	f.version.Add(1)
}

func (f *Feed) Notice(ctx context.Context, message string) {
	f.logger.DebugContext(ctx, "notice", "message", message)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, Notice{Message: message, At: f.now().UTC()})
	if over := len(f.notices) - f.limit; over > 0 {
		f.notices = append(f.notices[:0:0], f.notices[over:]...)
	}
}

// Version returns the number of cart changes seen so far.
func (f *Feed) Version() uint64 {
	return f.version.Load()
}

// Drain returns the queued notices in arrival order and empties the queue.
func (f *Feed) Drain() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.notices
	f.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
