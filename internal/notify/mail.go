package notify

import (
	"context"
	"io"

	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Filename string
	Data     []byte
}

type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender dials the relay for every message; notification volume is low and
// long-lived SMTP sessions are dropped by most relays anyway.
type SMTPSender struct {
	d    *gomail.Dialer
	from string
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	if from == "" {
		from = `"Astro Motors" <` + user + `>`
	}
	return &SMTPSender{d: gomail.NewDialer(host, port, user, password), from: from}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	for _, a := range m.Attachments {
		data := a.Data
		msg.Attach(a.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return s.d.DialAndSend(msg)
}
