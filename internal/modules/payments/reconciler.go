package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Transition struct {
	From    Status
	To      Status
	Changed bool
}

type statusWriter interface {
	TransitionStatus(ctx context.Context, id string, from, to Status, paidAt *time.Time) (bool, error)
}

// Reconciler is the only writer of Payment.Status. Side effects run once,
// for the caller whose compare-and-swap won.
type Reconciler struct {
	store     statusWriter
	fulfiller Fulfiller
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

func NewReconciler(store statusWriter, fulfiller Fulfiller, notifier Notifier) *Reconciler {
	return &Reconciler{store: store, fulfiller: fulfiller, notifier: notifier, now: time.Now, logger: slog.Default()}
}

func (r *Reconciler) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Apply moves p to status to. p is updated in place when the move happens.
func (r *Reconciler) Apply(ctx context.Context, p *Payment, to Status, paidAt *time.Time) (Transition, error) {
	tr := Transition{From: p.Status, To: to}
	if p.Status == to {
		r.logger.InfoContext(ctx, "payment status unchanged", "payment_id", p.ID, "status", string(to))
		return tr, nil
	}
	if !CanTransition(p.Status, to) {
		r.logger.WarnContext(ctx, "payment status transition ignored",
			"payment_id", p.ID, "from", string(p.Status), "to", string(to))
		return tr, nil
	}

	if to == StatusApproved && paidAt == nil {
		t := r.now()
		paidAt = &t
	}
	if to != StatusApproved {
		paidAt = nil
	}

	won, err := r.store.TransitionStatus(ctx, p.ID, p.Status, to, paidAt)
	if err != nil {
		return tr, fmt.Errorf("payments: transition %s %s->%s: %w", p.ID, p.Status, to, err)
	}
	if !won {
		r.logger.InfoContext(ctx, "payment status changed concurrently, skipping",
			"payment_id", p.ID, "from", string(p.Status), "to", string(to))
		return tr, nil
	}

	p.Status = to
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	tr.Changed = true
	r.logger.InfoContext(ctx, "payment status changed",
		"payment_id", p.ID, "from", string(tr.From), "to", string(to), "appointment_id", p.AppointmentID)

	return tr, r.sideEffects(ctx, *p, to)
}

func (r *Reconciler) sideEffects(ctx context.Context, p Payment, to Status) error {
	var errs []error
	switch to {
	case StatusApproved:
		if r.fulfiller != nil {
			changed, err := r.fulfiller.MarkCompleted(ctx, p.AppointmentID)
			if err != nil {
				r.logger.ErrorContext(ctx, "appointment completion failed", "payment_id", p.ID, "appointment_id", p.AppointmentID, "err", err)
				errs = append(errs, err)
			} else if !changed {
				r.logger.InfoContext(ctx, "appointment already completed", "payment_id", p.ID, "appointment_id", p.AppointmentID)
			}
		}
		if r.notifier != nil {
			if err := r.notifier.PaymentApproved(ctx, p); err != nil {
				r.logger.ErrorContext(ctx, "approval notification failed", "payment_id", p.ID, "err", err)
				errs = append(errs, err)
			}
		}
	case StatusDeclined:
		if r.notifier != nil {
			if err := r.notifier.PaymentDeclined(ctx, p); err != nil {
				r.logger.ErrorContext(ctx, "decline notification failed", "payment_id", p.ID, "err", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
