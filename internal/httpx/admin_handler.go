package httpx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/users"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Users.List(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminUsers(list))
}

func (h *Handler) salesByCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	rows, err := h.Reports.SalesByCategory(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategorySales(rows))
}

func (h *Handler) stockReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	rows, err := h.Reports.StockReport(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockReport(rows))
}

type contactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

const msgContact = "Gracias por contactarnos. Te responderemos pronto."

// contact sends the auto-reply. Nothing is stored, so a publish failure is
// reported instead of swallowed.
func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	var req contactReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name, msg := strings.TrimSpace(req.Name), strings.TrimSpace(req.Message)
	if name == "" || strings.TrimSpace(req.Email) == "" || msg == "" {
		writeError(w, r, fmt.Errorf("%w: name, email and message are required", apperr.ErrValidation))
		return
	}
	email, err := users.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Events != nil {
		ctx, cancel := h.ctx(r)
		defer cancel()
		err := h.Events.Publish(ctx, notify.EventContactReceived, email, notify.ContactReceived{
			Recipient: notify.Recipient{Name: name, Email: email},
			Subject:   strings.TrimSpace(req.Subject),
			Message:   msg,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, message{Message: msgContact})
}
