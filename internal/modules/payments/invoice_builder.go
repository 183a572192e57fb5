package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
)

type Order struct {
	ID          string
	Description string
	AmountCents int64
	Items       []iugu.Item
}

type Payer struct {
	Name     string
	Document string
	Email    string
	Phone    string
}

type InvoiceRequest struct {
	Order          Order
	Payer          Payer
	AllowedMethods string
	TenantID       string
}

type BuilderConfig struct {
	WebhookBaseURL  string
	DueDays         int
	PixPollAttempts int
	PixPollDelay    time.Duration
}

type tokenResolver interface {
	Resolve(ctx context.Context, tenantID string) Token
}

type splitComputer interface {
	Compute(ctx context.Context, tenantID string, usingSubAccountToken bool) *Split
}

// InvoiceBuilder creates gateway invoices for a tenant with the right token
// and split, waiting briefly for the PIX payload when one was requested.
type InvoiceBuilder struct {
	gw     IuguGateway
	creds  tokenResolver
	split  splitComputer
	cfg    BuilderConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

func NewInvoiceBuilder(gw IuguGateway, creds tokenResolver, split splitComputer, cfg BuilderConfig) *InvoiceBuilder {
	if cfg.DueDays < 0 {
		cfg.DueDays = 0
	}
	if cfg.PixPollAttempts < 0 {
		cfg.PixPollAttempts = 0
	}
	return &InvoiceBuilder{
		gw:     gw,
		creds:  creds,
		split:  split,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
}

func (b *InvoiceBuilder) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

func (b *InvoiceBuilder) CreateInvoice(ctx context.Context, req InvoiceRequest) (iugu.Invoice, error) {
	methods, err := ParseAllowedMethods(req.AllowedMethods)
	if err != nil {
		return iugu.Invoice{}, err
	}

	tok := b.creds.Resolve(ctx, req.TenantID)
	split := b.split.Compute(ctx, req.TenantID, tok.SubAccount)

	body := iugu.CreateInvoiceRequest{
		Email:       req.Payer.Email,
		DueDate:     DueDate(b.now(), b.cfg.DueDays),
		Items:       invoiceItems(req.Order),
		Payer:       iugu.Payer{Name: req.Payer.Name, CPFCNPJ: req.Payer.Document, Email: req.Payer.Email, Phone: req.Payer.Phone},
		PayableWith: methods,
		OrderID:     req.Order.ID,
	}
	if split != nil {
		body.Splits = []iugu.Split{{RecipientAccountID: split.RecipientAccountID, Percent: split.Percent}}
	}
	if base := strings.TrimRight(b.cfg.WebhookBaseURL, "/"); base != "" {
		body.NotificationURL = base + "/webhooks/iugu"
	}

	inv, err := b.gw.CreateInvoice(ctx, tok.Value, body)
	if err != nil {
		b.logger.ErrorContext(ctx, "invoice creation failed",
			"tenant_id", req.TenantID, "account_id", tok.AccountID, "order_id", req.Order.ID, "err", err)
		return iugu.Invoice{}, err
	}
	b.logger.InfoContext(ctx, "invoice created",
		"invoice_id", inv.ID, "tenant_id", req.TenantID, "account_id", tok.AccountID,
		"methods", strings.Join(methods, ","), "split", split != nil)

	if contains(methods, iugu.MethodPix) && !inv.Pix.Ready() {
		inv = b.waitForPix(ctx, tok, inv)
	}
	return inv, nil
}

// waitForPix re-fetches the invoice until the gateway has generated the PIX
// payload or the attempts run out. The invoice already exists, so failures
// here only cost the QR code.
func (b *InvoiceBuilder) waitForPix(ctx context.Context, tok Token, inv iugu.Invoice) iugu.Invoice {
	for attempt := 1; attempt <= b.cfg.PixPollAttempts; attempt++ {
		if err := b.sleep(ctx, b.cfg.PixPollDelay); err != nil {
			b.logger.WarnContext(ctx, "pix wait interrupted", "invoice_id", inv.ID, "err", err)
			return inv
		}
		fetched, err := b.gw.GetInvoice(ctx, tok.Value, inv.ID)
		if err != nil {
			b.logger.WarnContext(ctx, "pix poll failed", "invoice_id", inv.ID, "attempt", attempt, "err", err)
			continue
		}
		if fetched.Pix.Ready() {
			inv.Pix = fetched.Pix
			if fetched.Status != "" {
				inv.Status = fetched.Status
			}
			return inv
		}
	}
	b.logger.WarnContext(ctx, "pix payload not available", "invoice_id", inv.ID, "attempts", b.cfg.PixPollAttempts)
	return inv
}

// DueDate is today's UTC calendar date plus days, never in the past.
func DueDate(now time.Time, days int) string {
	if days < 0 {
		days = 0
	}
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+days, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// ParseAllowedMethods accepts "pix", "credit_card" or both, in any order.
func ParseAllowedMethods(s string) ([]string, error) {
	methods := iugu.ParseMethods(s)
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidMethod)
	}
	for _, m := range methods {
		if m != iugu.MethodPix && m != iugu.MethodCreditCard {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, m)
		}
	}
	return methods, nil
}

func invoiceItems(o Order) []iugu.Item {
	if len(o.Items) > 0 {
		return o.Items
	}
	desc := o.Description
	if desc == "" {
		desc = "Vistoria veicular"
	}
	return []iugu.Item{{Description: desc, Quantity: 1, PriceCents: o.AmountCents}}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
