package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("disk full")

type fakeConfirmer struct {
	mu       sync.Mutex
	answer   bool
	err      error
	block    bool
	messages []string
}

func (f *fakeConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.answer, f.err
}

func (f *fakeConfirmer) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes int
	notices []string
}

func (r *recordingNotifier) CartChanged(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func (r *recordingNotifier) Notice(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

type recordingPublisher struct {
	events []messaging.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.events = append(p.events, event)
	return p.err
}

// countingSlot wraps Memory, counts writes and can be told to fail them.
type countingSlot struct {
	*store.Memory
	writes     int
	failWrites bool
}

func (c *countingSlot) Write(ctx context.Context, key string, value []byte) error {
	if c.failWrites {
		return errWriteFailed
	}
	c.writes++
	return c.Memory.Write(ctx, key, value)
}

type fixture struct {
	svc       *Service
	slot      *countingSlot
	confirmer *fakeConfirmer
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, catalog.Default())
}

func newFixtureWith(t *testing.T, products *catalog.Catalog) *fixture {
	t.Helper()
	f := &fixture{
		slot:      &countingSlot{Memory: store.NewMemory()},
		confirmer: &fakeConfirmer{answer: true},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(products, f.slot, f.confirmer, f.notifier, f.publisher, logger, Options{})
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

// stored decodes what the slot currently holds.
func (f *fixture) stored(t *testing.T) []Entry {
	t.Helper()
	data, err := f.slot.Read(context.Background(), DefaultKey)
	require.NoError(t, err)
	entries, err := Decode(data)
	require.NoError(t, err)
	return entries
}

func mustCatalog(t *testing.T, products ...catalog.Product) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(products)
	require.NoError(t, err)
	return c
}
