package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/logging"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/ariefcatur/astro-motors/internal/users"
	"github.com/go-chi/chi/v5"
)

const headerIdempotencyKey = "Idempotency-Key"

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.CheckoutOK
	case errors.Is(err, apperr.ErrEmptyCart):
		return metrics.CheckoutEmptyCart
	case errors.Is(err, apperr.ErrInsufficientStock):
		return metrics.CheckoutInsufficientStock
	default:
		return metrics.CheckoutFailed
	}
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	log := logging.FromCtx(r.Context())

	var req checkoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := orders.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := orders.CheckoutInput{
		UserID:        u.ID,
		ShipTo:        req.ShippingInfo.info(),
		PaymentMethod: method,
		CountryCode:   req.CountryCode,
		CouponCode:    req.CouponCode,
	}
	// rejected before any transaction starts
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	d := h.CheckoutTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), d)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if h.Idempotency == nil {
		key = ""
	}
	if key != "" {
		claimed, orderID, inFlight, err := h.Idempotency.Claim(ctx, u.ID, key)
		switch {
		case err != nil:
			// proceed without the key
			log.Warn("idempotency claim failed", "err", err)
			key = ""
		case inFlight:
			writeError(w, r, fmt.Errorf("%w: a checkout with this idempotency key is in progress", apperr.ErrConflict))
			return
		case !claimed:
			h.replayCheckout(ctx, w, r, u, orderID)
			return
		}
	}

	rc, err := h.Orders.Checkout(ctx, in)
	h.Metrics.CheckoutResult(checkoutResult(err))
	if err != nil {
		if key != "" {
			if rerr := h.Idempotency.Release(context.WithoutCancel(ctx), u.ID, key); rerr != nil {
				log.Warn("idempotency release failed", "err", rerr)
			}
		}
		if statusOf(err) == http.StatusInternalServerError {
			log.Error("checkout rolled back", "err", err)
		}
		writeError(w, r, err)
		return
	}

	o := rc.Order
	o.CustomerName, o.CustomerEmail = u.Name, u.Email
	rc.Order = o
	log.Info("checkout committed", "order_id", o.ID, "grand_total", o.GrandTotal.StringFixed(2), "items", o.ItemCount)

	if key != "" {
		h.completeKey(context.WithoutCancel(ctx), u.ID, key, o.ID)
	}
	h.notifyOrderPlaced(r.Context(), rc, u)

	writeJSON(w, http.StatusCreated, toCheckout(o, rc.Totals))
}

const completeAttempts = 3

// completeKey records the order under key. If that keeps failing the key is
// released, since a key left pending would answer 409 until it expires.
func (h *Handler) completeKey(ctx context.Context, userID, key, orderID string) {
	log := logging.FromCtx(ctx)
	var err error
	for i := 0; i < completeAttempts; i++ {
		if err = h.Idempotency.Complete(ctx, userID, key, orderID); err == nil {
			return
		}
	}
	log.Warn("idempotency complete failed", "order_id", orderID, "err", err)
	if rerr := h.Idempotency.Release(ctx, userID, key); rerr != nil {
		log.Warn("idempotency release failed", "order_id", orderID, "err", rerr)
	}
}

// notifyOrderPlaced is best effort: the order is already committed.
func (h *Handler) notifyOrderPlaced(ctx context.Context, rc orders.Receipt, u users.User) {
	if h.Events == nil {
		return
	}
	payload := notify.OrderPlacedFrom(rc, notify.Recipient{Name: u.Name, Email: u.Email})
	if err := h.Events.Publish(ctx, notify.EventOrderPlaced, rc.Order.ID, payload); err != nil {
		logging.FromCtx(ctx).Error("receipt notification failed", "order_id", rc.Order.ID, "err", err)
	}
}

func (h *Handler) replayCheckout(ctx context.Context, w http.ResponseWriter, r *http.Request, u users.User, orderID string) {
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.UserID != u.ID {
		writeError(w, r, fmt.Errorf("%w: idempotency key belongs to another order", apperr.ErrConflict))
		return
	}
	writeJSON(w, http.StatusOK, toCheckout(o, totalsOf(o)))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Orders.ListByUser(ctx, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Orders.ListAll(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

// getOrder answers 404 for orders owned by someone else, so ids cannot be probed.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	id := chi.URLParam(r, "id")
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.UserID != u.ID && !u.IsAdmin() {
		writeError(w, r, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}
