package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/order"
	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/pkg/idempotency"
)

const maxBodyBytes = 1 << 20

type orderService interface {
	PlaceOrder(ctx context.Context, in order.PlaceOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	TrackOrder(ctx context.Context, number string) (domain.Tracking, error)
	ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]*domain.Order, error)
	ListOrders(ctx context.Context, f order.ListFilter) (order.Page, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, in order.UpdateStatusInput) (*domain.Order, error)
}

type Handler struct {
	svc orderService
	log *zap.Logger
}

func NewOrderHandler(svc orderService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes() func(mux *chi.Mux) {
	return func(mux *chi.Mux) {
		mux.Route("/api/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/my-orders", h.myOrders)
			r.Get("/track/{orderNumber}", h.trackOrder)
			r.Get("/{id}", h.getOrder)
			r.Put("/{id}/cancel", h.cancelOrder)
			r.Put("/{id}/status", h.updateStatus)
		})
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	key, err := idempotency.Key(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := make([]order.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, order.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.svc.PlaceOrder(r.Context(), order.PlaceOrderInput{
		CustomerID:      req.UserID,
		CustomerEmail:   req.CustomerEmail,
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		CustomerNote:    req.CustomerNote,
		IsGift:          req.IsGift,
		GiftMessage:     req.GiftMessage,
		IdempotencyKey:  key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Order placed successfully",
		"order": placedOrder{
			OrderNumber:       o.Number,
			Total:             money(o.Total),
			Status:            o.Status,
			EstimatedDelivery: o.EstimatedDelivery,
		},
	})
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	orders, err := h.svc.ListCustomerOrders(r.Context(), userID, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(orders),
		"orders":  toOrderResponses(orders),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderResponse(o)})
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.TrackOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracking": t})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	if _, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order cancelled successfully"})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.UpdateStatus(r.Context(), order.UpdateStatusInput{
		OrderID:        chi.URLParam(r, "id"),
		Status:         status,
		Note:           req.Note,
		UpdatedBy:      req.UpdatedBy,
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order status updated",
		"order":   toOrderResponse(o),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}
	var ok bool
	if f.Page, ok = intParam(w, q.Get("page"), "page"); !ok {
		return
	}
	if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}

	page, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"count":       len(page.Orders),
		"total":       page.Total,
		"pages":       page.Pages(),
		"currentPage": page.Page,
		"orders":      toOrderResponses(page.Orders),
	})
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// decodeOptional is decode for bodies that may be absent, including an empty
// chunked body whose length is unknown up front.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrPersistenceConflict), errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, catalog.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
