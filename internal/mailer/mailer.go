// Package mailer delivers plain-text payment notices over SMTP.
package mailer

import "context"

type Sender interface {
	Send(ctx context.Context, e Email) error
}

type Email struct {
	FromName string
	From     string

	To  []string
	Bcc []string

	Subject  string
	TextBody string

	// Headers are added verbatim, e.g. X-Payment-ID.
	Headers map[string]string
}

func (e Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Bcc))
	out = append(out, e.To...)
	return append(out, e.Bcc...)
}
