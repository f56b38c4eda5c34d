package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	kafkax "github.com/ariefcatur/astro-motors/internal/kafka"
)

// ErrUnknownEvent marks envelopes this worker has no template for.
var ErrUnknownEvent = errors.New("notify: unknown event type")

const layout = `{{define "layout"}}<div style="font-family:Arial,sans-serif;background:#050509;color:#fff;padding:24px;">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:640px;margin:0 auto;background:#0c0c0f;border-radius:18px;">
<tr><td style="padding:24px;text-align:center;background:#000;">
<h1 style="margin:0;font-size:22px;letter-spacing:0.18em;">ASTRO MOTORS</h1>
<p style="margin:4px 0 0;font-size:12px;color:#bbb;">"Conquista la carretera, llega más lejos"</p>
</td></tr>
<tr><td style="padding:20px 24px;font-size:14px;line-height:1.6;">{{template "body" .}}</td></tr>
<tr><td style="padding:0 24px 20px;font-size:11px;color:#888;text-align:center;">Astro Motors · {{.Year}}</td></tr>
</table></div>{{end}}`

var templates = map[string]string{
	EventOrderPlaced: `{{define "body"}}<h2>Gracias por tu compra</h2>
<p>Hola <strong>{{.P.Customer.Name}}</strong>, hemos registrado tu compra con el número de orden <strong>#{{.P.OrderID}}</strong>.</p>
<p>Total pagado: <strong>{{money .P.GrandTotal}}</strong> ({{.P.ItemCount}} artículos).</p>
<p>En el PDF adjunto encontrarás la nota de compra con el detalle de productos y el desglose de pago.</p>{{end}}`,

	EventUserRegistered: `{{define "body"}}<h2>¡Bienvenido, {{.P.Name}}!</h2>
<p>Tu cuenta en Astro Motors está lista. Como regalo de bienvenida, usa este cupón en tu primera compra:</p>
<p style="text-align:center;"><span style="background:#ff4444;padding:10px 18px;border-radius:999px;font-weight:bold;letter-spacing:0.15em;">{{.P.Coupon}}</span></p>
<p>Obtienes un 10% de descuento sobre el subtotal.</p>{{end}}`,

	EventPasswordResetRequested: `{{define "body"}}<h2>Restablecer contraseña</h2>
<p>Hola <strong>{{.P.Name}}</strong>, recibimos una solicitud para restablecer tu contraseña.</p>
<p style="text-align:center;"><a href="{{.Link}}" style="background:#ff4444;color:#fff;padding:12px 24px;border-radius:999px;text-decoration:none;">Restablecer contraseña</a></p>
<p style="font-size:12px;color:#ccc;">El enlace vence el {{.P.ExpiresAt.Format "02/01/2006 15:04"}} UTC. Si no solicitaste el cambio, ignora este correo.</p>{{end}}`,

	EventNewsletterSubscribed: `{{define "body"}}<h2>¡Gracias por suscribirte!</h2>
<p>Recibirás nuestras novedades y ofertas. Aquí tienes tu cupón de 10% de descuento:</p>
<p style="text-align:center;"><strong style="letter-spacing:0.15em;">{{.P.Coupon}}</strong></p>{{end}}`,

	EventContactReceived: `{{define "body"}}<h2>Gracias por contactarnos</h2>
<p>Hola <strong>{{.P.Name}}</strong>, recibimos tu mensaje{{if .P.Subject}} sobre "{{.P.Subject}}"{{end}} y en breve será atendido.</p>
<blockquote style="border-left:3px solid #ff4444;padding-left:12px;color:#ccc;">{{.P.Message}}</blockquote>{{end}}`,
}

// Renderer turns notification envelopes into mail messages.
type Renderer struct {
	FrontBaseURL string
	now          func() time.Time
	parsed       map[string]*template.Template
}

func NewRenderer(frontBaseURL string) (*Renderer, error) {
	r := &Renderer{
		FrontBaseURL: strings.TrimRight(frontBaseURL, "/"),
		now:          time.Now,
		parsed:       make(map[string]*template.Template, len(templates)),
	}
	funcs := template.FuncMap{"money": Money}
	for ev, body := range templates {
		t, err := template.New(ev).Funcs(funcs).Parse(layout)
		if err != nil {
			return nil, err
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("template %s: %w", ev, err)
		}
		r.parsed[ev] = t
	}
	return r, nil
}

type view struct {
	P    any
	Link string
	Year int
}

func (r *Renderer) Render(env Envelope) (Message, error) {
	switch env.EventType {
	case EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[OrderPlaced](env.Payload)
		if err != nil {
			return Message{}, err
		}
		pdf, err := ReceiptPDF(p)
		if err != nil {
			return Message{}, err
		}
		html, err := r.exec(env.EventType, view{P: p})
		if err != nil {
			return Message{}, err
		}
		return Message{
			To:          p.Customer.Email,
			Subject:     fmt.Sprintf("Nota de compra #%s - Astro Motors", p.OrderID),
			HTML:        html,
			Attachments: []Attachment{{Filename: "nota-compra-" + p.OrderID + ".pdf", Data: pdf}},
		}, nil

	case EventUserRegistered:
		p, err := kafkax.UnwrapPayload[UserRegistered](env.Payload)
		if err != nil {
			return Message{}, err
		}
		return r.message(env.EventType, p.Email, "¡Bienvenido a Astro Motors! Tu cupón de compra", view{P: p})

	case EventPasswordResetRequested:
		p, err := kafkax.UnwrapPayload[PasswordResetRequested](env.Payload)
		if err != nil {
			return Message{}, err
		}
		link := r.FrontBaseURL + "/reset-password.html?token=" + url.QueryEscape(p.Token)
		return r.message(env.EventType, p.Email, "Restablecer contraseña - Astro Motors", view{P: p, Link: link})

	case EventNewsletterSubscribed:
		p, err := kafkax.UnwrapPayload[NewsletterSubscribed](env.Payload)
		if err != nil {
			return Message{}, err
		}
		return r.message(env.EventType, p.Email, "Tu cupón de descuento - Astro Motors", view{P: p})

	case EventContactReceived:
		p, err := kafkax.UnwrapPayload[ContactReceived](env.Payload)
		if err != nil {
			return Message{}, err
		}
		return r.message(env.EventType, p.Email, "Gracias por contactarnos - Astro Motors", view{P: p})
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.EventType)
}

func (r *Renderer) message(event, to, subject string, v view) (Message, error) {
	html, err := r.exec(event, v)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: html}, nil
}

func (r *Renderer) exec(event string, v view) (string, error) {
	v.Year = r.now().Year()
	var buf bytes.Buffer
	if err := r.parsed[event].ExecuteTemplate(&buf, "layout", v); err != nil {
		return "", fmt.Errorf("render %s: %w", event, err)
	}
	return buf.String(), nil
}
