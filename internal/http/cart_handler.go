package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/cartstore/internal/cart"
	"github.com/fjod/go_cart/cartstore/internal/checkout"
	"github.com/fjod/go_cart/cartstore/internal/domain"
	"github.com/fjod/go_cart/cartstore/internal/notify"
	"github.com/fjod/go_cart/cartstore/internal/persistence"
	"github.com/fjod/go_cart/cartstore/internal/pricing"
	"github.com/fjod/go_cart/cartstore/internal/service"
	"github.com/fjod/go_cart/cartstore/internal/session"
)

// Sessions hands out the live cart of a session.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*session.Cart, error)
}

type CartHandler struct {
	sessions  Sessions
	calc      *pricing.Calculator
	publisher checkout.Publisher
	logger    *zap.Logger
	timeout   time.Duration
}

func NewCartHandler(sessions Sessions, calc *pricing.Calculator, publisher checkout.Publisher, logger *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		sessions:  sessions,
		calc:      calc,
		publisher: publisher,
		logger:    logger,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	Product  domain.ProductSnapshot `json:"product"`
	Color    string                 `json:"color"`
	Size     string                 `json:"size"`
	Quantity int                    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type SyncRequestDTO struct {
	UserID string `json:"userId"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type CartView struct {
	Items     []domain.CartItem `json:"items"`
	Totals    domain.Totals     `json:"totals"`
	ItemCount int               `json:"itemCount"`
	LastError string            `json:"lastError,omitempty"`
}

type MutationResponse struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	Cart          CartView              `json:"cart"`
	Notifications []notify.Notification `json:"notifications"`
}

type LookupResponse struct {
	InCart bool             `json:"inCart"`
	Item   *domain.CartItem `json:"item,omitempty"`
}

type CheckoutResponse struct {
	SessionID string                  `json:"sessionId"`
	Snapshot  domain.CheckoutSnapshot `json:"snapshot"`
}

// request carries the per-call facade and the notifications it emits.
type request struct {
	svc      *service.CartService
	recorder *notify.Recorder
}

func (h *CartHandler) open(ctx context.Context, w http.ResponseWriter) (*request, bool) {
	sessionID := getSessionID(ctx)
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "cart session is required")
		return nil, false
	}

	c, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		h.logger.Error("load session cart failed", zap.String("session_id", sessionID), zap.Error(err))
		if errors.Is(err, persistence.ErrBackendUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "cart storage is unavailable, retry")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return nil, false
	}

	recorder := notify.NewRecorder()
	sink := notify.Tee(recorder, notify.NewLogger(h.logger.With(zap.String("session_id", sessionID))))
	return &request{
		svc:      service.NewCartService(c.Store, c.Persistence, h.calc, sink, h.logger),
		recorder: recorder,
	}, true
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, view(req.svc))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var body AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if body.Product.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product.id is required")
		return
	}

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	res := req.svc.AddToCart(ctx, body.Product, body.Color, body.Size, body.Quantity)
	h.respondMutation(w, req, res, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	var body UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	res := req.svc.UpdateQuantity(ctx, index, body.Quantity)
	h.respondMutation(w, req, res, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	res := req.svc.RemoveFromCart(ctx, index)
	h.respondMutation(w, req, res, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	res := req.svc.ClearCart(ctx)
	h.respondMutation(w, req, res, http.StatusOK)
}

func (h *CartHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	req, ok := h.open(r.Context(), w)
	if !ok {
		return
	}
	req.svc.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	req, ok := h.open(r.Context(), w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, req.svc.CartTotals())
}

func (h *CartHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	req, ok := h.open(r.Context(), w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": req.svc.CartItemCount()})
}

func (h *CartHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID := q.Get("productId")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}

	req, ok := h.open(r.Context(), w)
	if !ok {
		return
	}
	item, found := req.svc.CartItem(productID, q.Get("color"), q.Get("size"))
	resp := LookupResponse{InCart: found}
	if found {
		resp.Item = &item
	}
	respondJSON(w, http.StatusOK, resp)
}

// Checkout publishes the cart snapshot for order creation. The cart itself is
// cleared later, when the order placed event comes back.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}

	sessionID := getSessionID(ctx)
	snapshot := req.svc.PrepareCheckout()
	err := h.publisher.Publish(ctx, checkout.Handoff{
		SessionID: sessionID,
		UserID:    getUserID(ctx),
		Snapshot:  snapshot,
	})
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
		return
	case errors.Is(err, checkout.ErrCheckoutDisabled):
		respondError(w, http.StatusServiceUnavailable, "checkout_unavailable", "checkout is not available")
		return
	case err != nil:
		h.logger.Error("checkout handoff failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "checkout_failed", "failed to start checkout")
		return
	}

	respondJSON(w, http.StatusAccepted, CheckoutResponse{SessionID: sessionID, Snapshot: snapshot})
}

func (h *CartHandler) SyncWithUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var body SyncRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}
	// the proxy-authenticated user wins; the body may only name the same user
	userID := getUserID(ctx)
	switch {
	case userID == "":
		userID = body.UserID
	case body.UserID != "" && body.UserID != userID:
		respondError(w, http.StatusForbidden, "user_mismatch", "userId does not match the authenticated user")
		return
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "userId is required")
		return
	}

	req, ok := h.open(ctx, w)
	if !ok {
		return
	}
	res := req.svc.SyncCartWithUser(ctx, userID)
	if !res.Success {
		respondJSON(w, http.StatusServiceUnavailable, mutation(req, res))
		return
	}
	respondJSON(w, http.StatusOK, mutation(req, res))
}

func (h *CartHandler) respondMutation(w http.ResponseWriter, req *request, res service.Result, okStatus int) {
	status := okStatus
	if !res.Success {
		status = statusFor(res.Err)
	}
	respondJSON(w, status, mutation(req, res))
}

func mutation(req *request, res service.Result) MutationResponse {
	return MutationResponse{
		Success:       res.Success,
		Message:       res.Message,
		Cart:          view(req.svc),
		Notifications: req.recorder.Notifications(),
	}
}

func view(svc *service.CartService) CartView {
	return CartView{
		Items:     svc.Items(),
		Totals:    svc.CartTotals(),
		ItemCount: svc.CartItemCount(),
		LastError: svc.LastError(),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrStockExceeded):
		return http.StatusConflict
	case errors.Is(err, cart.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out, nothing useful to do on failure
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
