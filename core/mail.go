package core

import (
	"context"
	"net/mail"
	"strings"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		Body    string // text/plain
	}

	// EmailService is any service that can deliver an email.
	// Send blocks until the provider accepted (or rejected) the message.
	EmailService interface {
		Send(ctx context.Context, msg *EmailMessage) error
	}
)

// NewEmailMessage builds a plain text message for a single recipient.
// An unparsable address leaves the message without recipients.
func NewEmailMessage(to, subject, body string) *EmailMessage {
	msg := &EmailMessage{Subject: subject, Body: body}
	if addr, err := mail.ParseAddress(strings.TrimSpace(to)); err == nil {
		msg.To = append(msg.To, *addr)
	}
	return msg
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return strings.TrimSpace(m.Body) != "" }
