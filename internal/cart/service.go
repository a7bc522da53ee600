package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/catalog"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/money"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKey is the slot key the cart is persisted under.
const DefaultKey = "tiendatec_cart"

// DefaultTaxRate is the sales tax applied to the subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// CartService defines the operations of the shopping cart.
type CartService interface {
	// Load replaces the cart with the persisted one.
	// A missing or malformed slot yields an empty cart.
	Load(ctx context.Context) error

	// AddItem adds quantity units of a product.
	// Returns ErrProductNotFound, ErrInsufficientStock or ErrInvalidQuantity.
	AddItem(ctx context.Context, productID, quantity int) error

	// RemoveItem removes a product after confirmation and reports whether it was removed.
	RemoveItem(ctx context.Context, productID int) (bool, error)

	// SetQuantity sets the quantity of an existing entry, clamped to [1, stock].
	SetQuantity(ctx context.Context, productID, quantity int) error

	// Increment adds one unit, creating the entry when absent.
	Increment(ctx context.Context, productID int) error

	// Decrement removes one unit. At quantity 1 it asks to remove the entry.
	Decrement(ctx context.Context, productID int) (bool, error)

	// Clear empties the cart after confirmation.
	Clear(ctx context.Context) (bool, error)

	// Checkout completes the purchase after confirmation.
	// Returns ErrEmptyCart when there is nothing to buy and a nil receipt when declined.
	Checkout(ctx context.Context) (*Receipt, error)

	Items() []Entry
	Lines() []Line
	Count() int
	Totals() Totals
}

var _ CartService = (*Service)(nil)

// Options configures a Service. Zero values fall back to the defaults.
type Options struct {
	Key string
	// TaxRate is DefaultTaxRate when nil; a zero rate disables tax.
	TaxRate        *decimal.Decimal
	CurrencySymbol string
}

// Service owns the cart and persists it to a slot after every mutation.
// Mutations are serialized; confirmation prompts are awaited without holding the lock.
type Service struct {
	mu      sync.Mutex
	entries []Entry

	products  ProductLookup
	slot      store.Slot
	confirmer Confirmer
	notifier  Notifier
	publisher messaging.Publisher
	logger    *slog.Logger

	key     string
	taxRate decimal.Decimal
	symbol  string

	// product ids already logged as missing from the catalog
	reportedOrphans map[int]struct{}

	tracer           trace.Tracer
	checkoutsCounter metric.Int64Counter
	now              func() time.Time
}

// NewService creates a cart service with an empty cart. Call Load to restore the persisted cart.
func NewService(products ProductLookup, slot store.Slot, confirmer Confirmer, notifier Notifier,
	publisher messaging.Publisher, logger *slog.Logger, opts Options) *Service {
	meter := otel.Meter("storefront-cart")
	checkoutsCounter, err := meter.Int64Counter("checkouts_completed", metric.WithDescription("Total number of completed checkouts"))
	if err != nil {
		panic(fmt.Sprintf("failed to create checkouts_completed counter: %v", err))
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	taxRate := DefaultTaxRate
	if opts.TaxRate != nil {
		taxRate = *opts.TaxRate
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = money.DefaultSymbol
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &Service{
		entries:          []Entry{},
		products:         products,
		slot:             slot,
		confirmer:        confirmer,
		notifier:         notifier,
		publisher:        publisher,
		logger:           logger.With("component", "cart"),
		key:              opts.Key,
		taxRate:          taxRate,
		symbol:           opts.CurrencySymbol,
		reportedOrphans:  map[int]struct{}{},
		tracer:           otel.Tracer("storefront-cart"),
		checkoutsCounter: checkoutsCounter,
		now:              time.Now,
	}
}

// Load reads the persisted cart. An empty or malformed slot starts an empty cart and is not an error.
// Entries that break the cart invariants are repaired. Read failures leave an empty cart and are returned.
func (s *Service) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "cart.Load")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []Entry{}
	data, err := s.slot.Read(ctx, s.key)
	if errors.Is(err, storeerrors.ErrSlotEmpty) {
		s.logger.DebugContext(ctx, "no stored cart, starting empty", "key", s.key)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return fmt.Errorf("failed to load cart: %w", err)
	}

	stored, err := Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "stored cart is malformed, starting empty", "key", s.key, "error", err)
		return nil
	}

	repaired, fixes := s.repair(stored)
	s.entries = repaired
	if fixes > 0 {
		s.logger.WarnContext(ctx, "repaired stored cart", "key", s.key, "fixes", fixes)
		if err := s.write(ctx, repaired); err != nil {
			s.logger.WarnContext(ctx, "failed to persist repaired cart", "error", err)
		}
	}
	s.logger.InfoContext(ctx, "cart loaded", "entries", len(s.entries))
	return nil
}

// repair drops unknown products and non-positive quantities, merges duplicates and clamps to stock.
func (s *Service) repair(stored []Entry) ([]Entry, int) {
	fixes := 0
	out := make([]Entry, 0, len(stored))
	for _, e := range stored {
		p, err := s.products.FindByID(e.ProductID)
		if err != nil || e.Quantity < 1 {
			fixes++
			continue
		}
		// both sides are at most stock, so the sum cannot overflow
		if e.Quantity > p.Stock {
			fixes++
			e.Quantity = p.Stock
		}
		if i := indexOf(out, e.ProductID); i >= 0 {
			fixes++
			out[i].Quantity = min(out[i].Quantity+e.Quantity, p.Stock)
			continue
		}
		out = append(out, e)
	}
	kept := out[:0]
	for _, e := range out {
		if e.Quantity < 1 {
			continue
		}
		kept = append(kept, e)
	}
	return kept, fixes
}

// AddItem adds quantity units of a product to the cart.
func (s *Service) AddItem(ctx context.Context, productID, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.Int("product.id", productID), attribute.Int("quantity", quantity)))
	defer span.End()

	if quantity < 1 {
		return fmt.Errorf("add %d of product %d: %w", quantity, productID, storeerrors.ErrInvalidQuantity)
	}

	s.mu.Lock()
	product, err := s.products.FindByID(productID)
	if err != nil {
		s.mu.Unlock()
		s.notifier.Notice(ctx, "Producto no encontrado.")
		return fmt.Errorf("failed to add product %d: %w", productID, err)
	}

	next := slices.Clone(s.entries)
	if i := indexOf(next, productID); i >= 0 {
		if quantity > product.Stock-next[i].Quantity {
			s.mu.Unlock()
			return s.insufficientStock(ctx, product, next[i].Quantity, quantity)
		}
		next[i].Quantity += quantity
	} else {
		if quantity > product.Stock {
			s.mu.Unlock()
			return s.insufficientStock(ctx, product, 0, quantity)
		}
		next = append(next, Entry{ProductID: productID, Quantity: quantity})
	}

	err = s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.notifier.CartChanged(ctx)
	s.notifier.Notice(ctx, fmt.Sprintf("%s agregado al carrito.", product.Title))
	return nil
}

func (s *Service) insufficientStock(ctx context.Context, product *catalog.Product, inCart, requested int) error {
	s.logger.WarnContext(ctx, "insufficient stock", "product_id", product.ID, "available", product.Stock,
		"in_cart", inCart, "requested", requested)
	s.notifier.Notice(ctx, "No hay suficiente stock disponible.")
	return fmt.Errorf("product %d. Available: %d, In cart: %d, Requested: %d: %w",
		product.ID, product.Stock, inCart, requested, storeerrors.ErrInsufficientStock)
}

// RemoveItem asks for confirmation and removes the entry on yes.
// Unknown products and products not in the cart are a no-op.
func (s *Service) RemoveItem(ctx context.Context, productID int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem", trace.WithAttributes(attribute.Int("product.id", productID)))
	defer span.End()

	s.mu.Lock()
	product, err := s.products.FindByID(productID)
	present := indexOf(s.entries, productID) >= 0
	s.mu.Unlock()
	if err != nil || !present {
		return false, nil
	}
	return s.confirmRemove(ctx, product)
}

func (s *Service) confirmRemove(ctx context.Context, product *catalog.Product) (bool, error) {
	ok, err := s.confirm(ctx, fmt.Sprintf("¿Eliminar %s del carrito?", product.Title))
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	i := indexOf(s.entries, product.ID)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	err = s.commit(ctx, slices.Delete(slices.Clone(s.entries), i, i+1))
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	s.notifier.CartChanged(ctx)
	s.notifier.Notice(ctx, fmt.Sprintf("%s eliminado.", product.Title))
	return true, nil
}

// SetQuantity clamps the requested quantity to [1, stock] and stores it.
// Missing entries and unknown products are a no-op.
func (s *Service) SetQuantity(ctx context.Context, productID, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "cart.SetQuantity", trace.WithAttributes(
		attribute.Int("product.id", productID), attribute.Int("quantity", quantity)))
	defer span.End()

	s.mu.Lock()
	product, err := s.products.FindByID(productID)
	i := indexOf(s.entries, productID)
	if err != nil || i < 0 {
		s.mu.Unlock()
		return nil
	}
	q := clamp(quantity, product.Stock)
	if q < 1 || q == s.entries[i].Quantity {
		s.mu.Unlock()
		return nil
	}
	next := slices.Clone(s.entries)
	next[i].Quantity = q
	err = s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notifier.CartChanged(ctx)
	return nil
}

// Increment adds one unit while below stock. An absent entry is created with quantity 1.
func (s *Service) Increment(ctx context.Context, productID int) error {
	ctx, span := s.tracer.Start(ctx, "cart.Increment", trace.WithAttributes(attribute.Int("product.id", productID)))
	defer span.End()

	s.mu.Lock()
	product, err := s.products.FindByID(productID)
	if err != nil {
		s.mu.Unlock()
		return nil
	}
	next := slices.Clone(s.entries)
	if i := indexOf(next, productID); i >= 0 {
		if next[i].Quantity >= product.Stock {
			s.mu.Unlock()
			return nil
		}
		next[i].Quantity++
	} else {
		if product.Stock < 1 {
			s.mu.Unlock()
			return s.insufficientStock(ctx, product, 0, 1)
		}
		next = append(next, Entry{ProductID: productID, Quantity: 1})
	}
	err = s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notifier.CartChanged(ctx)
	return nil
}

// Decrement removes one unit. At quantity 1 it follows RemoveItem, confirmation included.
// The result reports whether the cart changed.
func (s *Service) Decrement(ctx context.Context, productID int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Decrement", trace.WithAttributes(attribute.Int("product.id", productID)))
	defer span.End()

	s.mu.Lock()
	i := indexOf(s.entries, productID)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	if s.entries[i].Quantity == 1 {
		product, err := s.products.FindByID(productID)
		s.mu.Unlock()
		if err != nil {
			return false, nil
		}
		return s.confirmRemove(ctx, product)
	}
	next := slices.Clone(s.entries)
	next[i].Quantity--
	err := s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	s.notifier.CartChanged(ctx)
	return true, nil
}

// Clear asks for confirmation and empties the cart on yes.
func (s *Service) Clear(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Clear")
	defer span.End()

	ok, err := s.confirm(ctx, "¿Vaciar todo el carrito?")
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	err = s.commit(ctx, []Entry{})
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	s.notifier.CartChanged(ctx)
	s.notifier.Notice(ctx, "Carrito vaciado.")
	return true, nil
}

// Checkout confirms the purchase total and, on yes, empties the cart and returns a receipt.
// The event publication is best effort and never fails the checkout.
func (s *Service) Checkout(ctx context.Context) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Checkout")
	defer span.End()

	s.mu.Lock()
	snapshot := slices.Clone(s.entries)
	s.mu.Unlock()
	if len(snapshot) == 0 {
		s.notifier.Notice(ctx, "El carrito está vacío.")
		return nil, storeerrors.ErrEmptyCart
	}

	totals := ComputeTotals(snapshot, s.products, s.taxRate)
	message := fmt.Sprintf("Confirmar compra. Total: %s.", money.Format(s.symbol, totals.TotalCents))
	ok, err := s.confirm(ctx, message)
	if err != nil || !ok {
		return nil, err
	}

	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		s.notifier.Notice(ctx, "El carrito está vacío.")
		return nil, storeerrors.ErrEmptyCart
	}
	if !slices.Equal(snapshot, s.entries) {
		s.mu.Unlock()
		s.notifier.Notice(ctx, "El carrito cambió. Revísalo e inténtalo de nuevo.")
		return nil, nil
	}
	receipt := &Receipt{
		CheckoutID:  uuid.New(),
		Lines:       BuildLines(snapshot, s.products),
		Totals:      totals,
		CompletedAt: s.now().UTC(),
	}
	err = s.commit(ctx, []Entry{})
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, err
	}

	s.checkoutsCounter.Add(ctx, 1)
	span.SetAttributes(attribute.String("checkout.id", receipt.CheckoutID.String()),
		attribute.Int64("checkout.total_cents", totals.TotalCents))
	s.logger.InfoContext(ctx, "checkout completed", "checkout_id", receipt.CheckoutID, "total_cents", totals.TotalCents)
	s.publishCheckout(ctx, receipt)

	s.notifier.CartChanged(ctx)
	s.notifier.Notice(ctx, "Compra realizada correctamente. ¡Gracias por tu compra!")
	return receipt, nil
}

func (s *Service) publishCheckout(ctx context.Context, receipt *Receipt) {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	lines := make([]events.CheckoutLine, len(receipt.Lines))
	for i, l := range receipt.Lines {
		lines[i] = events.CheckoutLine{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			LineTotalCents: l.LineTotalCents,
		}
	}
	event := events.CheckoutCompletedEvent{
		Carrier:       carrier,
		CheckoutID:    receipt.CheckoutID,
		Lines:         lines,
		SubtotalCents: receipt.Totals.SubtotalCents,
		TaxCents:      receipt.Totals.TaxCents,
		TotalCents:    receipt.Totals.TotalCents,
		CompletedAt:   receipt.CompletedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CheckoutCompletedEvent", "checkout_id", receipt.CheckoutID, "error", err)
	}
}

// Items returns a copy of the cart entries in insertion order.
func (s *Service) Items() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Lines returns the entries resolved against the catalog.
func (s *Service) Lines() []Line {
	return BuildLines(s.Items(), s.products)
}

// Count returns the number of units in the cart.
func (s *Service) Count() int {
	return CountItems(s.Items())
}

// Totals prices the current cart. Entries missing from the catalog are skipped.
// Each missing product is logged the first time it is seen.
func (s *Service) Totals() Totals {
	t := ComputeTotals(s.Items(), s.products, s.taxRate)
	if fresh := s.markOrphans(t.SkippedProductIDs); len(fresh) > 0 {
		s.logger.Warn("cart references unknown products", "product_ids", fresh)
	}
	return t
}

// markOrphans records ids as reported and returns the ones not reported before.
func (s *Service) markOrphans(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []int
	for _, id := range ids {
		if _, seen := s.reportedOrphans[id]; !seen {
			s.reportedOrphans[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	return fresh
}

// confirm maps a cancelled context to "no".
func (s *Service) confirm(ctx context.Context, message string) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	ok, err := s.confirmer.Confirm(ctx, message)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return ok, nil
}

// commit persists next and only then makes it the current cart. The caller holds the lock.
func (s *Service) commit(ctx context.Context, next []Entry) error {
	if err := s.write(ctx, next); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart", "error", err)
		return err
	}
	s.entries = next
	return nil
}

func (s *Service) write(ctx context.Context, entries []Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := s.slot.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}

func indexOf(entries []Entry, productID int) int {
	return slices.IndexFunc(entries, func(e Entry) bool { return e.ProductID == productID })
}
