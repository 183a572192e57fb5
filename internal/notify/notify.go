// Package notify tells the rest of the platform about settled payments.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
)

const (
	EventApproved = "payment.approved"
	EventDeclined = "payment.declined"
)

// Event is the published shape of a payment outcome.
type Event struct {
	Event         string     `json:"event"`
	PaymentID     string     `json:"payment_id"`
	AppointmentID string     `json:"appointment_id"`
	TenantID      string     `json:"tenant_id"`
	Provider      string     `json:"provider"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func NewEvent(name string, p payments.Payment, now time.Time) Event {
	return Event{
		Event:         name,
		PaymentID:     p.ID,
		AppointmentID: p.AppointmentID,
		TenantID:      p.TenantID,
		Provider:      p.Provider,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Status:        string(p.Status),
		PaidAt:        p.PaidAt,
		OccurredAt:    now.UTC(),
	}
}

// Multi fans out to every notifier and joins their errors.
type Multi []payments.Notifier

func (m Multi) PaymentApproved(ctx context.Context, p payments.Payment) error {
	var errs []error
	for _, n := range m {
		if err := n.PaymentApproved(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PaymentDeclined(ctx context.Context, p payments.Payment) error {
	var errs []error
	for _, n := range m {
		if err := n.PaymentDeclined(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes outcomes to the structured log.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) PaymentApproved(ctx context.Context, p payments.Payment) error {
	l.logger.InfoContext(ctx, EventApproved,
		"payment_id", p.ID, "appointment_id", p.AppointmentID, "tenant_id", p.TenantID,
		"provider", p.Provider, "amount_cents", p.AmountCents)
	return nil
}

func (l *Log) PaymentDeclined(ctx context.Context, p payments.Payment) error {
	l.logger.InfoContext(ctx, EventDeclined,
		"payment_id", p.ID, "appointment_id", p.AppointmentID, "tenant_id", p.TenantID, "provider", p.Provider)
	return nil
}

var (
	_ payments.Notifier = Multi(nil)
	_ payments.Notifier = (*Log)(nil)
	_ payments.Notifier = (*AMQP)(nil)
	_ payments.Notifier = (*Mail)(nil)
)
