package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/go-chi/chi/v5"
)

type addItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemReq struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK, nil)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, r, fmt.Errorf("%w: productId is required", apperr.ErrValidation))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	h.respondCart(w, r, http.StatusCreated, func(ctx context.Context, cartID string) error {
		return h.Carts.AddOrIncrement(ctx, cartID, req.ProductID, req.Quantity)
	})
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, fmt.Errorf("%w: quantity is required", apperr.ErrValidation))
		return
	}
	lineID := chi.URLParam(r, "lineId")
	h.respondCart(w, r, http.StatusOK, func(ctx context.Context, cartID string) error {
		return h.Carts.UpdateQuantity(ctx, cartID, lineID, *req.Quantity)
	})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineId")
	h.respondCart(w, r, http.StatusOK, func(ctx context.Context, cartID string) error {
		return h.Carts.RemoveLine(ctx, cartID, lineID)
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK, func(ctx context.Context, cartID string) error {
		return h.Carts.Clear(ctx, cartID)
	})
}

// respondCart runs mutate against the caller's open cart, then answers with the fresh view.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, code int, mutate func(ctx context.Context, cartID string) error) {
	u, _ := currentUser(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	if mutate != nil {
		err := h.mutateOpenCart(ctx, u.ID, mutate)
		if errors.Is(err, cart.ErrClosed) {
			// checkout closed the cart in between; apply to the fresh one
			err = h.mutateOpenCart(ctx, u.ID, mutate)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	v, err := h.Carts.View(ctx, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, toCart(v))
}

func (h *Handler) mutateOpenCart(ctx context.Context, userID string, mutate func(ctx context.Context, cartID string) error) error {
	c, err := h.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	return mutate(ctx, c.ID)
}
