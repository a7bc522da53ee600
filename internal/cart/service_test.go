package cart

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/catalog"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/money"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Service_AddItem(t *testing.T) {
	testCases := []struct {
		name        string
		before      []Entry
		productID   int
		quantity    int
		expected    []Entry
		expectedErr error
	}{
		{
			name:      "new entry",
			productID: 1,
			quantity:  2,
			expected:  []Entry{{ProductID: 1, Quantity: 2}},
		},
		{
			name:      "existing entry is incremented",
			before:    []Entry{{ProductID: 1, Quantity: 1}},
			productID: 1,
			quantity:  3,
			expected:  []Entry{{ProductID: 1, Quantity: 4}},
		},
		{
			name:      "insertion order is kept",
			before:    []Entry{{ProductID: 3, Quantity: 1}},
			productID: 1,
			quantity:  1,
			expected:  []Entry{{ProductID: 3, Quantity: 1}, {ProductID: 1, Quantity: 1}},
		},
		{
			name:        "up to stock is allowed, above is not",
			before:      []Entry{{ProductID: 1, Quantity: 4}},
			productID:   1,
			quantity:    2,
			expected:    []Entry{{ProductID: 1, Quantity: 4}},
			expectedErr: storeerrors.ErrInsufficientStock,
		},
		{
			name:        "huge quantity on existing entry does not wrap",
			before:      []Entry{{ProductID: 1, Quantity: 4}},
			productID:   1,
			quantity:    math.MaxInt,
			expected:    []Entry{{ProductID: 1, Quantity: 4}},
			expectedErr: storeerrors.ErrInsufficientStock,
		},
		{
			name:        "huge quantity on new entry",
			productID:   1,
			quantity:    math.MaxInt,
			expected:    []Entry{},
			expectedErr: storeerrors.ErrInsufficientStock,
		},
		{
			name:        "new entry above stock",
			productID:   5,
			quantity:    5,
			expected:    []Entry{},
			expectedErr: storeerrors.ErrInsufficientStock,
		},
		{
			name:        "unknown product",
			productID:   99,
			quantity:    1,
			expected:    []Entry{},
			expectedErr: storeerrors.ErrProductNotFound,
		},
		{
			name:        "zero quantity",
			productID:   1,
			quantity:    0,
			expected:    []Entry{},
			expectedErr: storeerrors.ErrInvalidQuantity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			for _, e := range tc.before {
				require.NoError(t, f.svc.AddItem(ctx, e.ProductID, e.Quantity))
			}
			// when
			err := f.svc.AddItem(ctx, tc.productID, tc.quantity)
			// then
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expected, f.svc.Items())
		})
	}
}

func Test_Service_AddItem_PersistsAndNotifies(t *testing.T) {
	// given
	f := newFixture(t)
	// when
	err := f.svc.AddItem(context.Background(), 2, 1)
	// then
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ProductID: 2, Quantity: 1}}, f.stored(t))
	assert.Equal(t, 1, f.notifier.changes)
	assert.Equal(t, []string{"Auriculares Inalámbricos agregado al carrito."}, f.notifier.notices)
}

func Test_Service_AddItem_FailureNotices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Error(t, f.svc.AddItem(ctx, 42, 1))
	require.Error(t, f.svc.AddItem(ctx, 5, 10))

	assert.Equal(t, []string{"Producto no encontrado.", "No hay suficiente stock disponible."}, f.notifier.notices)
	assert.Equal(t, 0, f.notifier.changes)
	assert.Equal(t, 0, f.slot.writes)
}

func Test_Service_WriteFailureKeepsCart(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 1, 1))
	f.slot.failWrites = true

	// when
	errAdd := f.svc.AddItem(ctx, 1, 1)
	errInc := f.svc.Increment(ctx, 2)
	cleared, errClear := f.svc.Clear(ctx)

	// then
	assert.ErrorIs(t, errAdd, errWriteFailed)
	assert.ErrorIs(t, errInc, errWriteFailed)
	assert.ErrorIs(t, errClear, errWriteFailed)
	assert.False(t, cleared)
	assert.Equal(t, []Entry{{ProductID: 1, Quantity: 1}}, f.svc.Items())
	assert.Equal(t, 1, f.notifier.changes)
}

func Test_Service_RemoveItem(t *testing.T) {
	testCases := []struct {
		name      string
		answer    bool
		productID int
		expected  []Entry
		confirmed bool
		asked     []string
	}{
		{
			name:      "confirmed",
			answer:    true,
			productID: 3,
			expected:  []Entry{{ProductID: 1, Quantity: 2}},
			confirmed: true,
			asked:     []string{"¿Eliminar Teclado Mecánico RGB del carrito?"},
		},
		{
			name:      "declined",
			answer:    false,
			productID: 3,
			expected:  []Entry{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}},
			asked:     []string{"¿Eliminar Teclado Mecánico RGB del carrito?"},
		},
		{
			name:      "not in cart",
			answer:    true,
			productID: 4,
			expected:  []Entry{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}},
		},
		{
			name:      "unknown product",
			answer:    true,
			productID: 77,
			expected:  []Entry{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.svc.AddItem(ctx, 1, 2))
			require.NoError(t, f.svc.AddItem(ctx, 3, 1))
			f.confirmer.answer = tc.answer
			// when
			confirmed, err := f.svc.RemoveItem(ctx, tc.productID)
			// then
			require.NoError(t, err)
			assert.Equal(t, tc.confirmed, confirmed)
			assert.Equal(t, tc.expected, f.svc.Items())
			assert.Equal(t, tc.expected, f.stored(t))
			assert.Equal(t, tc.asked, f.confirmer.asked())
		})
	}
}

func Test_Service_RemoveItem_CancelledContextIsNo(t *testing.T) {
	// given
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(context.Background(), 1, 1))
	f.confirmer.block = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// when
	confirmed, err := f.svc.RemoveItem(ctx, 1)

	// then
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, []Entry{{ProductID: 1, Quantity: 1}}, f.svc.Items())
}

func Test_Service_RemoveItem_EntryGoneWhileWaiting(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 1, 1))
	gate := &gatedConfirmer{release: make(chan struct{}), asked: make(chan struct{}, 1)}
	f.svc.confirmer = gate

	// when
	done := make(chan bool)
	go func() {
		confirmed, _ := f.svc.RemoveItem(ctx, 1)
		done <- confirmed
	}()
	<-gate.asked
	// the lock is not held while the prompt is open
	f.svc.confirmer = &fakeConfirmer{answer: true}
	cleared, err := f.svc.Clear(ctx)
	require.NoError(t, err)
	require.True(t, cleared)
	close(gate.release)

	// then
	assert.False(t, <-done)
	assert.Empty(t, f.svc.Items())
}

type gatedConfirmer struct {
	release chan struct{}
	asked   chan struct{}
}

func (g *gatedConfirmer) Confirm(context.Context, string) (bool, error) {
	g.asked <- struct{}{}
	<-g.release
	return true, nil
}

func Test_Service_SetQuantity(t *testing.T) {
	testCases := []struct {
		name      string
		productID int
		requested int
		expected  int
	}{
		{name: "within range", productID: 1, requested: 3, expected: 3},
		{name: "above stock is clamped", productID: 1, requested: 9, expected: 5},
		{name: "zero becomes one", productID: 1, requested: 0, expected: 1},
		{name: "negative becomes one", productID: 1, requested: -4, expected: 1},
		{name: "from parsed text", productID: 1, requested: ParseQuantity("abc"), expected: 1},
		{name: "from fractional text", productID: 1, requested: ParseQuantity("2.7"), expected: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.svc.AddItem(ctx, tc.productID, 2))
			// when
			err := f.svc.SetQuantity(ctx, tc.productID, tc.requested)
			// then
			require.NoError(t, err)
			assert.Equal(t, []Entry{{ProductID: tc.productID, Quantity: tc.expected}}, f.svc.Items())
			assert.Equal(t, f.svc.Items(), f.stored(t))
		})
	}
}

func Test_Service_SetQuantity_NoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 1, 1))
	writes := f.slot.writes

	require.NoError(t, f.svc.SetQuantity(ctx, 2, 3), "entry missing")
	require.NoError(t, f.svc.SetQuantity(ctx, 99, 3), "product missing")

	assert.Equal(t, []Entry{{ProductID: 1, Quantity: 1}}, f.svc.Items())
	assert.Equal(t, writes, f.slot.writes)
}

func Test_Service_Increment(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()

	// when
	require.NoError(t, f.svc.Increment(ctx, 5)) // absent -> 1
	for range 10 {
		require.NoError(t, f.svc.Increment(ctx, 5))
	}
	require.NoError(t, f.svc.Increment(ctx, 99))

	// then
	assert.Equal(t, []Entry{{ProductID: 5, Quantity: 4}}, f.svc.Items())
}

func Test_Service_Increment_AbsentWithoutStock(t *testing.T) {
	// given
	products := mustCatalog(t, catalog.Product{ID: 7, Title: "Agotado", UnitPrice: money.MustParse("10.00"), Stock: 0})
	f := newFixtureWith(t, products)
	// when
	err := f.svc.Increment(context.Background(), 7)
	// then
	assert.ErrorIs(t, err, storeerrors.ErrInsufficientStock)
	assert.Empty(t, f.svc.Items())
}

func Test_Service_Decrement(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 1, 2))

	// when
	changed, err := f.svc.Decrement(ctx, 1)

	// then
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []Entry{{ProductID: 1, Quantity: 1}}, f.svc.Items())
	assert.Empty(t, f.confirmer.asked())
}

func Test_Service_Decrement_AtOneAsksToRemove(t *testing.T) {
	testCases := []struct {
		name     string
		answer   bool
		expected []Entry
	}{
		{name: "yes removes", answer: true, expected: []Entry{}},
		{name: "no keeps one", answer: false, expected: []Entry{{ProductID: 1, Quantity: 1}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.svc.AddItem(ctx, 1, 1))
			f.confirmer.answer = tc.answer
			// when
			changed, err := f.svc.Decrement(ctx, 1)
			// then
			require.NoError(t, err)
			assert.Equal(t, tc.answer, changed)
			assert.Equal(t, tc.expected, f.svc.Items())
			assert.Equal(t, []string{`¿Eliminar Laptop Ultraligera 14" del carrito?`}, f.confirmer.asked())
		})
	}
}

func Test_Service_Decrement_Absent(t *testing.T) {
	f := newFixture(t)
	changed, err := f.svc.Decrement(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, f.confirmer.asked())
}

func Test_Service_Clear(t *testing.T) {
	testCases := []struct {
		name     string
		answer   bool
		expected []Entry
		notices  []string
	}{
		{name: "confirmed", answer: true, expected: []Entry{}, notices: []string{"Carrito vaciado."}},
		{name: "declined", answer: false, expected: []Entry{{ProductID: 2, Quantity: 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.svc.AddItem(ctx, 2, 3))
			f.notifier.notices = nil
			f.confirmer.answer = tc.answer
			// when
			cleared, err := f.svc.Clear(ctx)
			// then
			require.NoError(t, err)
			assert.Equal(t, tc.answer, cleared)
			assert.Equal(t, tc.expected, f.svc.Items())
			assert.Equal(t, tc.expected, f.stored(t))
			assert.Equal(t, tc.notices, f.notifier.notices)
			assert.Equal(t, []string{"¿Vaciar todo el carrito?"}, f.confirmer.asked())
		})
	}
}

func Test_Service_Totals_Scenario(t *testing.T) {
	// given
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(context.Background(), 1, 2))

	// when
	totals := f.svc.Totals()

	// then
	assert.Equal(t, int64(519800), totals.SubtotalCents)
	assert.Equal(t, int64(93564), totals.TaxCents)
	assert.Equal(t, int64(613364), totals.TotalCents)
	assert.Equal(t, "5198.00", money.FromCents(totals.SubtotalCents))
	assert.Equal(t, "935.64", money.FromCents(totals.TaxCents))
	assert.Equal(t, "6133.64", money.FromCents(totals.TotalCents))
	assert.Equal(t, 2, f.svc.Count())
}

func Test_Service_Totals_ZeroTaxRate(t *testing.T) {
	// given
	zero := decimal.Zero
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(catalog.Default(), store.NewMemory(), &fakeConfirmer{}, nil, nil, logger, Options{TaxRate: &zero})
	require.NoError(t, svc.AddItem(context.Background(), 1, 2))

	// when
	totals := svc.Totals()

	// then
	assert.Equal(t, int64(519800), totals.SubtotalCents)
	assert.Zero(t, totals.TaxCents)
	assert.Equal(t, totals.SubtotalCents, totals.TotalCents)
}

// hidingLookup serves the default catalog minus the hidden ids.
type hidingLookup struct {
	mu     sync.Mutex
	hidden map[int]bool
}

func (h *hidingLookup) hide(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hidden[id] = true
}

func (h *hidingLookup) FindByID(id int) (*catalog.Product, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hidden[id] {
		return nil, storeerrors.ErrProductNotFound
	}
	return catalog.Default().FindByID(id)
}

func Test_Service_Totals_LogsEachMissingProductOnce(t *testing.T) {
	// given
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	products := &hidingLookup{hidden: map[int]bool{}}
	svc := NewService(products, store.NewMemory(), &fakeConfirmer{}, nil, nil, logger, Options{})
	ctx := context.Background()
	require.NoError(t, svc.AddItem(ctx, 1, 1))
	require.NoError(t, svc.AddItem(ctx, 2, 1))
	require.NoError(t, svc.AddItem(ctx, 3, 1))
	products.hide(1)

	// when
	for range 3 {
		svc.Totals()
	}
	products.hide(3)
	totals := svc.Totals()

	// then
	assert.Equal(t, []int{1, 3}, totals.SkippedProductIDs)
	assert.Equal(t, 2, strings.Count(logs.String(), "cart references unknown products"))
	assert.Contains(t, logs.String(), "product_ids=[1]")
	assert.Contains(t, logs.String(), "product_ids=[3]")
}

func Test_Service_Lines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 2, 2))
	require.NoError(t, f.svc.AddItem(ctx, 3, 1))

	lines := f.svc.Lines()

	require.Len(t, lines, 2)
	assert.Equal(t, Line{
		ProductID:      2,
		Title:          "Auriculares Inalámbricos",
		UnitPrice:      "249.90",
		Quantity:       2,
		Stock:          12,
		UnitPriceCents: 24990,
		LineTotalCents: 49980,
	}, lines[0])
	assert.Equal(t, 3, lines[1].ProductID)
	assert.Equal(t, 3, f.svc.Count())
}

func Test_Service_Items_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.AddItem(context.Background(), 1, 1))

	items := f.svc.Items()
	items[0].Quantity = 100

	assert.Equal(t, 1, f.svc.Items()[0].Quantity)
}

func Test_Service_Checkout(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 1, 2))
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	f.notifier.notices = nil

	// when
	receipt, err := f.svc.Checkout(ctx)

	// then
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, []string{"Confirmar compra. Total: S/ 6133.64."}, f.confirmer.asked())
	assert.Equal(t, int64(613364), receipt.Totals.TotalCents)
	assert.Equal(t, fixed, receipt.CompletedAt)
	require.Len(t, receipt.Lines, 1)
	assert.Equal(t, int64(519800), receipt.Lines[0].LineTotalCents)
	assert.Empty(t, f.svc.Items())
	assert.Equal(t, []Entry{}, f.stored(t))
	assert.Equal(t, []string{"Compra realizada correctamente. ¡Gracias por tu compra!"}, f.notifier.notices)

	require.Len(t, f.publisher.events, 1)
	event, ok := f.publisher.events[0].(events.CheckoutCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, messaging.CheckoutCompletedSubject, event.Subject())
	assert.Equal(t, receipt.CheckoutID, event.CheckoutID)
	assert.Equal(t, int64(93564), event.TaxCents)
	assert.Equal(t, []events.CheckoutLine{{ProductID: 1, Quantity: 2, UnitPriceCents: 259900, LineTotalCents: 519800}}, event.Lines)
}

func Test_Service_Checkout_EmptyCart(t *testing.T) {
	// given
	f := newFixture(t)
	require.NoError(t, f.slot.Memory.Write(context.Background(), DefaultKey, []byte(`[]`)))

	// when
	receipt, err := f.svc.Checkout(context.Background())

	// then
	assert.ErrorIs(t, err, storeerrors.ErrEmptyCart)
	assert.Nil(t, receipt)
	assert.Empty(t, f.confirmer.asked())
	assert.Equal(t, 0, f.slot.writes)
	assert.Equal(t, []string{"El carrito está vacío."}, f.notifier.notices)
}

func Test_Service_Checkout_Declined(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 6, 1))
	f.confirmer.answer = false

	// when
	receipt, err := f.svc.Checkout(ctx)

	// then
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, []Entry{{ProductID: 6, Quantity: 1}}, f.svc.Items())
	assert.Empty(t, f.publisher.events)
}

func Test_Service_Checkout_PublishFailureIsIgnored(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, 6, 1))
	f.publisher.err = assert.AnError

	// when
	receipt, err := f.svc.Checkout(ctx)

	// then
	require.NoError(t, err)
	assert.NotNil(t, receipt)
	assert.Empty(t, f.svc.Items())
}

func Test_Service_Load(t *testing.T) {
	testCases := []struct {
		name     string
		stored   string
		expected []Entry
	}{
		{
			name:     "valid",
			stored:   `[{"productId":1,"quantity":2},{"productId":3,"quantity":1}]`,
			expected: []Entry{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}},
		},
		{
			name:     "legacy qty key",
			stored:   `[{"productId":2,"qty":3}]`,
			expected: []Entry{{ProductID: 2, Quantity: 3}},
		},
		{
			name:     "malformed",
			stored:   `{not json`,
			expected: []Entry{},
		},
		{
			name:     "not an array",
			stored:   `{"productId":1}`,
			expected: []Entry{},
		},
		{
			name:     "unknown product and zero quantity are dropped",
			stored:   `[{"productId":99,"quantity":1},{"productId":1,"quantity":0},{"productId":2,"quantity":1}]`,
			expected: []Entry{{ProductID: 2, Quantity: 1}},
		},
		{
			name:     "duplicates are merged and clamped",
			stored:   `[{"productId":1,"quantity":3},{"productId":2,"quantity":1},{"productId":1,"quantity":4}]`,
			expected: []Entry{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 1}},
		},
		{
			name:     "huge duplicates are clamped, not wrapped",
			stored:   `[{"productId":1,"quantity":9223372036854775807},{"productId":1,"quantity":9223372036854775807}]`,
			expected: []Entry{{ProductID: 1, Quantity: 5}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.slot.Memory.Write(ctx, DefaultKey, []byte(tc.stored)))
			// when
			err := f.svc.Load(ctx)
			// then
			require.NoError(t, err)
			assert.Equal(t, tc.expected, f.svc.Items())
		})
	}
}

func Test_Service_Load_ReadError(t *testing.T) {
	f := newFixture(t)
	f.svc.slot = failingReadSlot{}

	err := f.svc.Load(context.Background())

	assert.ErrorIs(t, err, storeerrors.ErrStorageUnavailable)
	assert.Empty(t, f.svc.Items())
}

type failingReadSlot struct{}

func (failingReadSlot) Read(context.Context, string) ([]byte, error) {
	return nil, storeerrors.ErrStorageUnavailable
}

func (failingReadSlot) Write(context.Context, string, []byte) error {
	return storeerrors.ErrStorageUnavailable
}

func Test_Service_ConcurrentAddsNeverExceedStock(t *testing.T) {
	// given
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	// when
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.AddItem(ctx, 5, 1)
		}()
	}
	wg.Wait()

	// then
	assert.Equal(t, []Entry{{ProductID: 5, Quantity: 4}}, f.svc.Items())
	assert.Equal(t, f.svc.Items(), f.stored(t))
}
