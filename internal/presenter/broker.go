// Package presenter holds the state shared between the cart and its clients:
// open confirmation prompts and the notice feed.
package presenter

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
)

// Prompt is a yes/no question waiting for an answer.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type pendingPrompt struct {
	Prompt
	seq    uint64
	answer chan bool
}

// Broker parks confirmation requests until a client answers them.
// Confirm blocks the calling operation; Answer releases it.
type Broker struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pendingPrompt
	seq     uint64
	closed  bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		pending: make(map[uuid.UUID]*pendingPrompt),
		logger:  logger.With("component", "prompts"),
		now:     time.Now,
	}
}

// Confirm opens a prompt and waits for its answer.
// Returns the context error when ctx is done first and false once the broker is closed.
func (b *Broker) Confirm(ctx context.Context, message string) (bool, error) {
	p := &pendingPrompt{
		Prompt: Prompt{ID: uuid.New(), Message: message, CreatedAt: b.now().UTC()},
		answer: make(chan bool, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false, nil
	}
	b.seq++
	p.seq = b.seq
	b.pending[p.ID] = p
	b.mu.Unlock()
	b.logger.DebugContext(ctx, "prompt opened", "prompt_id", p.ID, "message", message)

	defer b.remove(p.ID)

	select {
	case ok := <-p.answer:
		b.logger.DebugContext(ctx, "prompt answered", "prompt_id", p.ID, "accept", ok)
		return ok, nil
	case <-ctx.Done():
		b.logger.DebugContext(ctx, "prompt abandoned", "prompt_id", p.ID, "error", ctx.Err())
		return false, ctx.Err()
	}
}

// Answer resolves an open prompt. Returns ErrPromptNotFound for unknown or already answered prompts.
func (b *Broker) Answer(id uuid.UUID, accept bool) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return storeerrors.ErrPromptNotFound
	}
	p.answer <- accept
	return nil
}

// Pending returns the open prompts, oldest first.
func (b *Broker) Pending() []Prompt {
	b.mu.Lock()
	open := make([]*pendingPrompt, 0, len(b.pending))
	for _, p := range b.pending {
		open = append(open, p)
	}
	b.mu.Unlock()
	slices.SortFunc(open, func(x, y *pendingPrompt) int {
		return cmp.Compare(x.seq, y.seq)
	})
	prompts := make([]Prompt, len(open))
	for i, p := range open {
		prompts[i] = p.Prompt
	}
	return prompts
}

// Close answers every open prompt with "no" and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, p := range b.pending {
		p.answer <- false
		delete(b.pending, id)
	}
}

func (b *Broker) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

// AutoConfirmer accepts every prompt. Used for scripted, non-interactive runs.
type AutoConfirmer struct {
	logger *slog.Logger
}

func NewAutoConfirmer(logger *slog.Logger) *AutoConfirmer {
	return &AutoConfirmer{logger: logger.With("component", "prompts")}
}

func (a *AutoConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.logger.InfoContext(ctx, "prompt auto-confirmed", "message", message)
	return true, nil
}
