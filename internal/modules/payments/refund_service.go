package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type refundStore interface {
	GetPayment(ctx context.Context, id string) (Payment, error)
	CreateRefund(ctx context.Context, ref *Refund) error
	FinishRefund(ctx context.Context, id, status string, providerRef, errMsg *string) error
}

// RefundService holds the admin operations that move a payment out of the
// normal gateway-driven flow.
type RefundService struct {
	store      refundStore
	iugu       IuguGateway
	asaas      AsaasGateway
	creds      tokenResolver
	reconciler applier
	logger     *slog.Logger
}

func NewRefundService(store refundStore, iuguGW IuguGateway, asaasGW AsaasGateway, creds tokenResolver, reconciler applier) *RefundService {
	return &RefundService{store: store, iugu: iuguGW, asaas: asaasGW, creds: creds, reconciler: reconciler, logger: slog.Default()}
}

func (s *RefundService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Refund returns an approved payment to the payer.
func (s *RefundService) Refund(ctx context.Context, paymentID string) (Payment, error) {
	pay, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if pay.Status != StatusApproved {
		return pay, ErrNotRefundable
	}
	ref := pay.InvoiceRef()
	if ref == "" {
		return pay, ErrNotRefundable
	}

	now := time.Now()
	rec := Refund{
		ID:          uuid.NewString(),
		PaymentID:   pay.ID,
		Provider:    pay.Provider,
		Status:      RefundInitiated,
		AmountCents: pay.AmountCents,
		Currency:    pay.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRefund(ctx, &rec); err != nil {
		return pay, err
	}

	var gwErr error
	switch pay.Provider {
	case ProviderIugu:
		tok := s.creds.Resolve(ctx, pay.TenantID)
		_, gwErr = s.iugu.RefundInvoice(ctx, tok.Value, ref)
	case ProviderAsaas:
		_, gwErr = s.asaas.RefundPayment(ctx, ref)
	default:
		gwErr = fmt.Errorf("%w: provider %q", ErrUnsupported, pay.Provider)
	}

	if gwErr != nil {
		msg := PublicMessage(gwErr)
		if err := s.store.FinishRefund(ctx, rec.ID, RefundFailed, nil, &msg); err != nil {
			s.logger.WarnContext(ctx, "refund record update failed", "payment_id", pay.ID, "err", err)
		}
		s.logger.ErrorContext(ctx, "refund failed", "payment_id", pay.ID, "provider", pay.Provider, "invoice_id", ref, "err", gwErr)
		return pay, fmt.Errorf("payments: refund %s: %w", pay.ID, gwErr)
	}

	if err := s.store.FinishRefund(ctx, rec.ID, RefundSucceeded, &ref, nil); err != nil {
		s.logger.WarnContext(ctx, "refund record update failed", "payment_id", pay.ID, "err", err)
	}
	if _, err := s.reconciler.Apply(ctx, &pay, StatusRefunded, nil); err != nil {
		return pay, err
	}
	s.logger.InfoContext(ctx, "payment refunded", "payment_id", pay.ID, "provider", pay.Provider, "invoice_id", ref)
	return pay, nil
}

// Cancel voids an unpaid payment and its gateway invoice.
func (s *RefundService) Cancel(ctx context.Context, paymentID string) (Payment, error) {
	pay, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if pay.Status != StatusPending && pay.Status != StatusProcessing {
		return pay, ErrNotCancelable
	}

	for _, ref := range invoiceRefs(pay) {
		var gwErr error
		switch pay.Provider {
		case ProviderIugu:
			tok := s.creds.Resolve(ctx, pay.TenantID)
			_, gwErr = s.iugu.CancelInvoice(ctx, tok.Value, ref)
		case ProviderAsaas:
			gwErr = s.asaas.DeletePayment(ctx, ref)
		}
		if gwErr != nil {
			s.logger.ErrorContext(ctx, "cancel failed", "payment_id", pay.ID, "provider", pay.Provider, "invoice_id", ref, "err", gwErr)
			return pay, fmt.Errorf("payments: cancel %s: %w", pay.ID, gwErr)
		}
	}

	if _, err := s.reconciler.Apply(ctx, &pay, StatusDeclined, nil); err != nil {
		return pay, err
	}
	s.logger.InfoContext(ctx, "payment canceled", "payment_id", pay.ID, "provider", pay.Provider)
	return pay, nil
}

// invoiceRefs lists the gateway invoices behind a payment, replacement first.
func invoiceRefs(p Payment) []string {
	var out []string
	if p.ChargeInvoiceID != nil && *p.ChargeInvoiceID != "" {
		out = append(out, *p.ChargeInvoiceID)
	}
	if p.ExternalInvoiceID != nil && *p.ExternalInvoiceID != "" && (len(out) == 0 || out[0] != *p.ExternalInvoiceID) {
		out = append(out, *p.ExternalInvoiceID)
	}
	return out
}
