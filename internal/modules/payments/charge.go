package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
)

type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeDeclined    OutcomeKind = "declined"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeFailed      OutcomeKind = "failed"
)

// ChargeOutcome is the result of every charge attempt. Declines and
// transport failures are outcomes, not errors.
type ChargeOutcome struct {
	Kind          OutcomeKind
	Success       bool
	Message       string
	Code          string
	GatewayStatus string
	InvoiceID     string
	Invoice       *iugu.Invoice
}

type ChargeRequest struct {
	InvoiceID    string
	TenantID     string
	CardToken    string
	Installments int
	Payer        Payer
	Order        Order
}

type invoiceCreator interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (iugu.Invoice, error)
}

// chargeAttempt is one way of capturing a card against an invoice. Attempts
// run in order until one gets a reply from the gateway.
type chargeAttempt struct {
	name string
	call func(ctx context.Context, tok Token, invoiceID string, req ChargeRequest) (iugu.Response, error)
}

const transportFailure = "Não foi possível comunicar com o gateway de pagamento. Tente novamente em instantes."

type ChargeOrchestrator struct {
	gw       IuguGateway
	creds    tokenResolver
	builder  invoiceCreator
	declines *DeclineTable
	attempts []chargeAttempt
	group    singleflight.Group
	logger   *slog.Logger
}

func NewChargeOrchestrator(gw IuguGateway, creds tokenResolver, builder invoiceCreator, declines *DeclineTable) *ChargeOrchestrator {
	if declines == nil {
		declines = MustDeclineTable()
	}
	o := &ChargeOrchestrator{gw: gw, creds: creds, builder: builder, declines: declines, logger: slog.Default()}
	o.attempts = []chargeAttempt{
		{name: "invoice_charge", call: o.chargeInvoice},
		{name: "direct_charge", call: o.chargeDirect},
	}
	return o
}

func (o *ChargeOrchestrator) SetLogger(logger *slog.Logger) {
	o.logger = logger
}

// ChargeCard captures a tokenized card for an invoice. Concurrent calls for
// the same invoice share one gateway round trip.
func (o *ChargeOrchestrator) ChargeCard(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	v, err, _ := o.group.Do(req.InvoiceID, func() (any, error) {
		return o.chargeCard(ctx, req)
	})
	if err != nil {
		return ChargeOutcome{}, err
	}
	return v.(ChargeOutcome), nil
}

func (o *ChargeOrchestrator) chargeCard(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	tok := o.creds.Resolve(ctx, req.TenantID)

	inv, err := o.gw.GetInvoice(ctx, tok.Value, req.InvoiceID)
	if err != nil {
		o.logger.ErrorContext(ctx, "charge: invoice fetch failed",
			"account_id", tok.AccountID, "invoice_id", req.InvoiceID, "err", err)
		return o.failed(req.InvoiceID, err), nil
	}

	if err := guardInvoice(inv); err != nil {
		o.logger.WarnContext(ctx, "charge refused by guard rail",
			"account_id", tok.AccountID, "invoice_id", inv.ID, "gateway_status", inv.Status)
		return ChargeOutcome{}, err
	}

	target := inv
	if !inv.CardOnly() {
		order := req.Order
		if order.AmountCents == 0 {
			order.AmountCents = inv.TotalCents
		}
		if len(order.Items) == 0 {
			order.Items = inv.Items
		}
		payer := req.Payer
		if payer.Email == "" {
			payer.Email = inv.Email
		}
		replacement, err := o.builder.CreateInvoice(ctx, InvoiceRequest{
			Order:          order,
			Payer:          payer,
			AllowedMethods: iugu.MethodCreditCard,
			TenantID:       req.TenantID,
		})
		if err != nil {
			o.logger.ErrorContext(ctx, "charge: card-only invoice creation failed",
				"account_id", tok.AccountID, "invoice_id", inv.ID, "err", err)
			return o.failed(inv.ID, err), nil
		}
		o.logger.InfoContext(ctx, "charge moved to card-only invoice",
			"invoice_id", inv.ID, "charge_invoice_id", replacement.ID, "payable_with", inv.PayableWith)
		target = replacement
	}

	// reply is the last attempt that produced a gateway document; a later
	// transport failure must not hide its decline code.
	var (
		reply, res   iugu.Response
		replyErr     error
		lastErr      error
		haveResponse bool
	)
	for _, a := range o.attempts {
		res, lastErr = a.call(ctx, tok, target.ID, req)
		if res.Doc.Exists() {
			reply, replyErr, haveResponse = res, lastErr, true
		}
		if lastErr == nil {
			break
		}
		o.logger.WarnContext(ctx, "charge attempt failed",
			"attempt", a.name, "account_id", tok.AccountID, "invoice_id", target.ID, "err", lastErr)
	}
	if haveResponse {
		res, lastErr = reply, replyErr
	}

	fallback := ""
	if lastErr != nil {
		fallback = transportFailure
		if apiErr, ok := iugu.AsAPIError(lastErr); ok {
			fallback = apiErr.Message
		}
	}
	out := o.declines.Classify(res.Doc, fallback)
	out.InvoiceID = target.ID
	if out.Success {
		snapshot := target
		if parsed, ok := iugu.ParseInvoice(res.Doc); ok && parsed.ID == target.ID {
			snapshot = parsed
		}
		out.Invoice = &snapshot
		o.logger.InfoContext(ctx, "charge approved", "account_id", tok.AccountID, "invoice_id", target.ID)
		return out, nil
	}

	o.logger.WarnContext(ctx, "charge not approved",
		"kind", string(out.Kind), "account_id", tok.AccountID, "invoice_id", target.ID,
		"code", out.Code, "gateway_status", out.GatewayStatus, "message", out.Message)
	return out, nil
}

func (o *ChargeOrchestrator) chargeInvoice(ctx context.Context, tok Token, invoiceID string, req ChargeRequest) (iugu.Response, error) {
	return o.gw.ChargeInvoice(ctx, tok.Value, invoiceID, iugu.InvoiceChargeRequest{
		Token:  req.CardToken,
		Months: installments(req.Installments),
	})
}

func (o *ChargeOrchestrator) chargeDirect(ctx context.Context, tok Token, invoiceID string, req ChargeRequest) (iugu.Response, error) {
	return o.gw.Charge(ctx, tok.Value, iugu.DirectChargeRequest{
		InvoiceID: invoiceID,
		Token:     req.CardToken,
		Months:    installments(req.Installments),
		Payer:     iugu.ChargePayer{Name: req.Payer.Name, CPFCNPJ: req.Payer.Document},
		Email:     req.Payer.Email,
	})
}

func (o *ChargeOrchestrator) failed(invoiceID string, err error) ChargeOutcome {
	msg := transportFailure
	if apiErr, ok := iugu.AsAPIError(err); ok {
		msg = apiErr.Message
	}
	return ChargeOutcome{Kind: OutcomeFailed, Message: msg, InvoiceID: invoiceID}
}

// guardInvoice refuses invoices that must never be charged again.
func guardInvoice(inv iugu.Invoice) error {
	switch inv.Status {
	case "paid":
		return ErrAlreadyPaid
	case "canceled", "refunded", "expired", "chargeback":
		return fmt.Errorf("%w: %s", ErrInvalidInvoiceState, inv.Status)
	}
	return nil
}

// IsGuardError reports whether err came from the guard rail rather than
// the gateway.
func IsGuardError(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrInvalidInvoiceState)
}

func installments(n int) int {
	if n < 1 {
		return 1
	}
	if n > 12 {
		return 12
	}
	return n
}
