package httpx

import (
	"net/http"

	"github.com/ariefcatur/astro-motors/internal/auth"
)

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CaptchaID   string `json:"captchaId"`
	CaptchaText string `json:"captchaText"`
}

type emailReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type captchaDTO struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

const (
	msgForgot     = "Si el correo está registrado, te enviamos un enlace para restablecer tu contraseña."
	msgReset      = "Contraseña actualizada correctamente."
	msgSubscribed = "¡Gracias por suscribirte! Revisa tu correo para obtener tu cupón."
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	s, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSession(s))
}

func (h *Handler) captcha(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	c, err := h.Auth.IssueCaptcha(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captchaDTO{ID: c.ID, Text: c.Text})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	s, err := h.Auth.Login(ctx, auth.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		CaptchaID:   req.CaptchaID,
		CaptchaText: req.CaptchaText,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(s))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: msgForgot})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: msgReset})
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Auth.Subscribe(ctx, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: msgSubscribed})
}
