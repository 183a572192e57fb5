package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type pollStore interface {
	GetPayment(ctx context.Context, id string) (Payment, error)
	AttachInvoice(ctx context.Context, id string, a InvoiceAttachment) error
}

// Poller fetches the live gateway status of a payment and reconciles it
// with the same tables webhooks use.
type Poller struct {
	store      pollStore
	iugu       IuguGateway
	asaas      AsaasGateway
	creds      tokenResolver
	tables     *StatusTables
	reconciler applier
	logger     *slog.Logger
}

func NewPoller(store pollStore, iuguGW IuguGateway, asaasGW AsaasGateway, creds tokenResolver, tables *StatusTables, reconciler applier) *Poller {
	if tables == nil {
		tables = DefaultStatusTables()
	}
	return &Poller{store: store, iugu: iuguGW, asaas: asaasGW, creds: creds, tables: tables, reconciler: reconciler, logger: slog.Default()}
}

func (p *Poller) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

func (p *Poller) Poll(ctx context.Context, paymentID string) (Payment, error) {
	pay, err := p.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	ref := pay.InvoiceRef()
	if ref == "" {
		return pay, nil
	}

	upstream, paidAt, attach, err := p.fetch(ctx, pay, ref)
	if err != nil {
		p.logger.WarnContext(ctx, "status poll failed",
			"payment_id", pay.ID, "provider", pay.Provider, "invoice_id", ref, "err", err)
		return pay, err
	}
	if attach != nil {
		if err := p.store.AttachInvoice(ctx, pay.ID, *attach); err != nil {
			p.logger.WarnContext(ctx, "pix payload refresh failed", "payment_id", pay.ID, "err", err)
		}
	}

	to := p.tables.Map(pay.Provider, upstream)
	if _, err := p.reconciler.Apply(ctx, &pay, to, paidAt); err != nil {
		p.logger.ErrorContext(ctx, "status poll apply failed", "payment_id", pay.ID, "err", err)
	}
	return p.store.GetPayment(ctx, pay.ID)
}

// fetch returns the upstream status, paid time and, when the local row is
// still missing it, the PIX payload.
func (p *Poller) fetch(ctx context.Context, pay Payment, ref string) (string, *time.Time, *InvoiceAttachment, error) {
	switch pay.Provider {
	case ProviderIugu:
		tok := p.creds.Resolve(ctx, pay.TenantID)
		inv, err := p.iugu.GetInvoice(ctx, tok.Value, ref)
		if err != nil {
			return "", nil, nil, err
		}
		var attach *InvoiceAttachment
		if pay.PixQRCode == nil && inv.Pix.Ready() {
			attach = &InvoiceAttachment{PixQRCode: inv.Pix.QRCodeText, PixQRCodeURL: inv.Pix.QRCodeImageURL}
		}
		return inv.Status, inv.PaidAt, attach, nil
	case ProviderAsaas:
		if p.asaas == nil || !p.asaas.Configured() {
			return "", nil, nil, fmt.Errorf("%w: asaas not configured", ErrUnsupported)
		}
		ap, err := p.asaas.GetPayment(ctx, ref)
		if err != nil {
			return "", nil, nil, err
		}
		return ap.Status, ap.PaidAt, nil, nil
	}
	return "", nil, nil, fmt.Errorf("%w: provider %q", ErrUnsupported, pay.Provider)
}
