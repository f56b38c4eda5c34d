package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/go-chi/chi/v5"
)

func parseFilter(r *http.Request) (catalog.Filter, error) {
	var f catalog.Filter
	q := r.URL.Query()
	if c := q.Get("category"); c != "" {
		f.Category = catalog.Category(c)
		if !f.Category.Valid() {
			return f, fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, c)
		}
	}
	if o := q.Get("offer"); o != "" {
		v, err := strconv.ParseBool(o)
		if err != nil {
			return f, fmt.Errorf("%w: offer must be true or false", apperr.ErrValidation)
		}
		f.OfferOnly = v
	}
	return f, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProducts(w, r, f)
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalog.Filter{OfferOnly: true})
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalog.Filter{})
}

func (h *Handler) writeProducts(w http.ResponseWriter, r *http.Request, f catalog.Filter) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	ps, err := h.Catalog.List(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	p, err := h.Catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	p, err := h.Catalog.Create(ctx, req.product())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProduct(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPatchReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	p, err := h.Catalog.Update(ctx, chi.URLParam(r, "id"), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
