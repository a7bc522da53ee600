// Package rest provides the HTTP/JSON API of the storefront.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/money"
	"github.com/abgdnv/storefront/internal/presenter"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ProductCatalog is the read side of the catalog used by the API.
type ProductCatalog interface {
	FindByID(id int) (*catalog.Product, error)
	Search(text, category string) []catalog.Product
}

// Prompts exposes open confirmation prompts to clients.
type Prompts interface {
	Pending() []presenter.Prompt
	Answer(id uuid.UUID, accept bool) error
}

// Notices exposes the change version and queued notices.
type Notices interface {
	Version() uint64
	Drain() []presenter.Notice
}

type Handler struct {
	cart     cart.CartService
	catalog  ProductCatalog
	prompts  Prompts
	notices  Notices
	symbol   string
	validate *validator.Validate
	logger   *slog.Logger

	// promptTimeout bounds how long a request waits for a prompt answer; zero waits forever.
	promptTimeout time.Duration
}

// promptMargin is the time left after a prompt expires to write the response.
const promptMargin = 5 * time.Second

// PromptTimeout returns how long a prompt may stay open so that the declined response
// still fits in the server's write timeout. A zero write timeout means no limit.
func PromptTimeout(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	return writeTimeout - min(promptMargin, writeTimeout/2)
}

// WithPromptTimeout makes confirmation-gated requests count as declined after d.
func (h *Handler) WithPromptTimeout(d time.Duration) *Handler {
	h.promptTimeout = d
	return h
}

// promptContext derives the context a confirmation-gated operation waits on.
func (h *Handler) promptContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.promptTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.promptTimeout)
}

// NewHandler creates the API handler. symbol is the currency symbol used in display amounts.
func NewHandler(cartService cart.CartService, products ProductCatalog, prompts Prompts, notices Notices,
	symbol string, logger *slog.Logger) *Handler {
	return &Handler{
		cart:     cartService,
		catalog:  products,
		prompts:  prompts,
		notices:  notices,
		symbol:   symbol,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the storefront.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.SearchProducts)
		r.Get("/products/{id}", h.FindProduct)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/checkout", h.Checkout)
			r.Post("/items", h.AddItem)

			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", h.SetQuantity)
				r.Delete("/", h.RemoveItem)
				r.Post("/increment", h.Increment)
				r.Post("/decrement", h.Decrement)
			})
		})

		r.Get("/prompts", h.ListPrompts)
		r.Post("/prompts/{id}", h.AnswerPrompt)
		r.Get("/notices", h.DrainNotices)
	})

	r.Get("/healthz", h.HealthCheck)
}

// SearchProducts lists products matching the optional q and category filters.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	q := r.URL.Query()
	found := h.catalog.Search(q.Get("q"), q.Get("category"))
	mLogger.DebugContext(r.Context(), "Searched products", "q", q.Get("q"), "category", q.Get("category"), "count", len(found))

	list := make([]ProductDto, len(found))
	for i := range found {
		list[i] = toProductDto(&found[i])
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// FindProduct returns a single product.
func (h *Handler) FindProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseIntID(w, r, mLogger, "id")
	if !ok {
		return
	}
	p, err := h.catalog.FindByID(id)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, toProductDto(p))
}

// GetCart returns the cart lines, item count, totals and change version.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.loggerWithReqID(r), http.StatusOK, h.cartView())
}

// AddItem adds a product to the cart. Quantity defaults to 1.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req AddItemRequest
	if !web.DecodeJSON(w, r, mLogger, &req) || !h.valid(w, r, mLogger, req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	mLogger.DebugContext(r.Context(), "Received request to add item", "productId", req.ProductID, "quantity", quantity)
	if err := h.cart.AddItem(r.Context(), req.ProductID, quantity); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, h.cartView())
}

// SetQuantity accepts any JSON value as quantity; it is coerced and clamped to stock.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseIntID(w, r, mLogger, "id")
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !web.DecodeJSON(w, r, mLogger, &req) {
		return
	}
	quantity := cart.ParseQuantity(rawQuantity(req.Quantity))
	mLogger.DebugContext(r.Context(), "Received request to set quantity", "productId", id, "quantity", quantity)
	if err := h.cart.SetQuantity(r.Context(), id, quantity); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, h.cartView())
}

func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseIntID(w, r, mLogger, "id")
	if !ok {
		return
	}
	if err := h.cart.Increment(r.Context(), id); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, h.cartView())
}

// Decrement may open a removal prompt; the response waits for its answer.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseIntID(w, r, mLogger, "id")
	if !ok {
		return
	}
	ctx, cancel := h.promptContext(r)
	defer cancel()
	changed, err := h.cart.Decrement(ctx, id)
	if err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, ConfirmationResponse{Confirmed: changed, Cart: h.cartView()})
}

// RemoveItem removes a product after the removal prompt is accepted.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseIntID(w, r, mLogger, "id")
	if !ok {
		return
	}
	ctx, cancel := h.promptContext(r)
	defer cancel()
	removed, err := h.cart.RemoveItem(ctx, id)
	if err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	if removed {
		mLogger.InfoContext(r.Context(), "Item removed from cart", "productId", id)
	}
	web.RespondJSON(w, mLogger, http.StatusOK, ConfirmationResponse{Confirmed: removed, Cart: h.cartView()})
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	ctx, cancel := h.promptContext(r)
	defer cancel()
	cleared, err := h.cart.Clear(ctx)
	if err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, ConfirmationResponse{Confirmed: cleared, Cart: h.cartView()})
}

// Checkout completes the purchase once the total is confirmed.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	ctx, cancel := h.promptContext(r)
	defer cancel()
	receipt, err := h.cart.Checkout(ctx)
	if err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	if receipt == nil {
		web.RespondJSON(w, mLogger, http.StatusOK, CheckoutResponse{Confirmed: false})
		return
	}
	mLogger.InfoContext(r.Context(), "Checkout completed", "checkoutId", receipt.CheckoutID)
	web.RespondJSON(w, mLogger, http.StatusOK, CheckoutResponse{
		Confirmed: true,
		Receipt: &ReceiptDto{
			CheckoutID:  receipt.CheckoutID,
			Lines:       receipt.Lines,
			Totals:      h.totalsView(receipt.Totals),
			CompletedAt: receipt.CompletedAt,
		},
	})
}

func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.loggerWithReqID(r), http.StatusOK, h.prompts.Pending())
}

// AnswerPrompt resolves an open prompt with {"accept": bool}.
func (h *Handler) AnswerPrompt(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid ID: %s", raw))
		return
	}
	var req AnswerRequest
	if !web.DecodeJSON(w, r, mLogger, &req) || !h.valid(w, r, mLogger, req) {
		return
	}
	if err := h.prompts.Answer(id, *req.Accept); err != nil {
		if errors.Is(err, storeerrors.ErrPromptNotFound) {
			mLogger.WarnContext(r.Context(), "Prompt not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Prompt with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error answering prompt", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to answer prompt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DrainNotices(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.loggerWithReqID(r), http.StatusOK, h.notices.Drain())
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) respondCartError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, storeerrors.ErrProductNotFound):
		logger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, logger, http.StatusNotFound, "Product not found")
	case errors.Is(err, storeerrors.ErrInsufficientStock):
		logger.WarnContext(r.Context(), "Insufficient stock", "error", err)
		web.RespondError(w, logger, http.StatusConflict, "Not enough stock available")
	case errors.Is(err, storeerrors.ErrEmptyCart):
		web.RespondError(w, logger, http.StatusConflict, "The cart is empty")
	case errors.Is(err, storeerrors.ErrInvalidQuantity):
		web.RespondError(w, logger, http.StatusBadRequest, "Quantity must be at least 1")
	case errors.Is(err, storeerrors.ErrStorageUnavailable):
		logger.ErrorContext(r.Context(), "Storage unavailable", "error", err)
		web.RespondError(w, logger, http.StatusServiceUnavailable, "Storage is temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "Cart operation failed", "error", err)
		web.RespondError(w, logger, http.StatusInternalServerError, "Cart operation failed")
	}
}

// valid runs struct validation and answers 400 with per-field errors on failure.
func (h *Handler) valid(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dto any) bool {
	err := h.validate.Struct(dto)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorResponse := make(map[string]string)
		for _, fieldErr := range validationErrors {
			errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
		}
		logger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		web.RespondJSON(w, logger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
		return false
	}
	logger.ErrorContext(r.Context(), "Error validating request body", "error", err)
	web.RespondError(w, logger, http.StatusBadRequest, "Invalid request body")
	return false
}

func (h *Handler) cartView() CartResponse {
	return CartResponse{
		Lines:   h.cart.Lines(),
		Count:   h.cart.Count(),
		Totals:  h.totalsView(h.cart.Totals()),
		Version: h.notices.Version(),
	}
}

func (h *Handler) totalsView(t cart.Totals) TotalsDto {
	return TotalsDto{
		Totals:   t,
		Subtotal: money.FromCents(t.SubtotalCents),
		Tax:      money.FromCents(t.TaxCents),
		Total:    money.FromCents(t.TotalCents),
		Display:  money.Format(h.symbol, t.TotalCents),
	}
}

// rawQuantity renders a JSON number or string as text for ParseQuantity; anything else is empty.
func rawQuantity(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch q := v.(type) {
	case float64:
		return strconv.FormatFloat(q, 'f', -1, 64)
	case string:
		return q
	default:
		return ""
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
