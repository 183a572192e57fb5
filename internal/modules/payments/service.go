package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/asaas"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/appointments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/storage"
)

type cardCharger interface {
	ChargeCard(ctx context.Context, req ChargeRequest) (ChargeOutcome, error)
}

type statusPoller interface {
	Poll(ctx context.Context, paymentID string) (Payment, error)
}

type ServiceConfig struct {
	DefaultProvider string
	DueDays         int
	// CheckoutLease bounds how long one request owns the gateway call of a
	// pending payment before a retry with the same key may take it over.
	CheckoutLease time.Duration
}

const defaultCheckoutLease = 2 * time.Minute

// Service runs checkout: it owns the local payment row and hands gateway
// work to the builder, the charge orchestrator and the reconciler.
type Service struct {
	db         *gorm.DB
	repo       *Repo
	builder    invoiceCreator
	charger    cardCharger
	asaas      AsaasGateway
	reconciler applier
	poller     statusPoller
	images     storage.Storage
	tables     *StatusTables
	cfg        ServiceConfig
	now        func() time.Time
	logger     *slog.Logger
}

type ServiceDeps struct {
	Builder    invoiceCreator
	Charger    cardCharger
	Asaas      AsaasGateway
	Reconciler applier
	Poller     statusPoller
	Images     storage.Storage
	Tables     *StatusTables
}

func NewService(db *gorm.DB, deps ServiceDeps, cfg ServiceConfig) *Service {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderIugu
	}
	if cfg.CheckoutLease <= 0 {
		cfg.CheckoutLease = defaultCheckoutLease
	}
	if deps.Tables == nil {
		deps.Tables = DefaultStatusTables()
	}
	return &Service{
		db:         db,
		repo:       NewRepo(db),
		builder:    deps.Builder,
		charger:    deps.Charger,
		asaas:      deps.Asaas,
		reconciler: deps.Reconciler,
		poller:     deps.Poller,
		images:     deps.Images,
		tables:     deps.Tables,
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

type CheckoutInput struct {
	AppointmentID  string
	IdempotencyKey string
	Methods        string
	Provider       string
	Payer          Payer
}

type CheckoutResult struct {
	PaymentID    string
	InvoiceID    string
	Provider     string
	Status       Status
	Methods      []string
	PixQRCode    string
	PixQRCodeURL string
	SecureURL    string
	Idempotent   bool
}

func (s *Service) StartCheckout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if in.AppointmentID == "" || in.IdempotencyKey == "" {
		return CheckoutResult{}, ErrNotPayable
	}
	methods, err := ParseAllowedMethods(in.Methods)
	if err != nil {
		return CheckoutResult{}, err
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	switch provider {
	case ProviderIugu:
	case ProviderAsaas:
		if s.asaas == nil || !s.asaas.Configured() {
			return CheckoutResult{}, fmt.Errorf("%w: asaas not configured", ErrUnsupported)
		}
	default:
		return CheckoutResult{}, fmt.Errorf("%w: provider %q", ErrUnsupported, provider)
	}

	// Phase-1: appointment lock + idempotency + pending payment claimed for
	// this request
	var (
		pay  Payment
		appt appointments.Appointment
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&appt, "id = ?", in.AppointmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAppointmentNotFound
			}
			return err
		}
		if appt.Status == appointments.StatusCompleted || appt.Status == appointments.StatusCanceled {
			return ErrNotPayable
		}

		now := s.now()
		e := tx.First(&pay, "appointment_id = ? AND idempotency_key = ?", appt.ID, in.IdempotencyKey).Error
		if e == nil {
			if pay.ExternalInvoiceID != nil || pay.Status != StatusPending {
				return nil
			}
			if pay.CheckoutClaimedAt != nil && now.Sub(*pay.CheckoutClaimedAt) < s.cfg.CheckoutLease {
				return ErrCheckoutInProgress
			}
			pay.CheckoutClaimedAt = &now
			return tx.Model(&Payment{}).Where("id = ?", pay.ID).
				Updates(map[string]any{"checkout_claimed_at": now, "updated_at": now}).Error
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		pay = Payment{
			ID:                uuid.NewString(),
			AppointmentID:     appt.ID,
			TenantID:          appt.TenantID,
			Provider:          provider,
			AmountCents:       appt.PriceCents,
			Currency:          "BRL",
			Status:            StatusPending,
			IdempotencyKey:    in.IdempotencyKey,
			PayerName:         in.Payer.Name,
			PayerEmail:        in.Payer.Email,
			PayerDocument:     in.Payer.Document,
			CheckoutClaimedAt: &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return tx.Create(&pay).Error
	})
	if err != nil && isDup(err) {
		// a concurrent request created the row and owns its gateway call
		err = s.db.WithContext(ctx).
			First(&pay, "appointment_id = ? AND idempotency_key = ?", in.AppointmentID, in.IdempotencyKey).Error
		if err == nil && pay.ExternalInvoiceID == nil && pay.Status == StatusPending {
			err = ErrCheckoutInProgress
		}
	}
	if err != nil {
		return CheckoutResult{}, err
	}

	if pay.ExternalInvoiceID != nil || pay.Status != StatusPending {
		return resultFrom(pay, methods, true), nil
	}

	// Phase-2: gateway call outside the transaction
	order := Order{ID: appt.ID, Description: appt.Description, AmountCents: pay.AmountCents}
	var attach InvoiceAttachment
	var upstream string
	var paidAt *time.Time
	switch pay.Provider {
	case ProviderIugu:
		inv, err := s.builder.CreateInvoice(ctx, InvoiceRequest{
			Order:          order,
			Payer:          in.Payer,
			AllowedMethods: strings.Join(methods, ","),
			TenantID:       pay.TenantID,
		})
		if err != nil {
			s.recordFailure(ctx, pay.ID, err)
			return resultFrom(pay, methods, false), fmt.Errorf("payments: create invoice: %w", err)
		}
		attach = InvoiceAttachment{
			ExternalInvoiceID: inv.ID,
			PaymentMethod:     strings.Join(methods, ","),
			PixQRCode:         inv.Pix.QRCodeText,
			PixQRCodeURL:      inv.Pix.QRCodeImageURL,
			SecureURL:         inv.SecureURL,
		}
		upstream, paidAt = inv.Status, inv.PaidAt
	case ProviderAsaas:
		ap, qr, err := s.createAsaasPayment(ctx, pay, order, in.Payer, methods)
		if err != nil {
			s.recordFailure(ctx, pay.ID, err)
			return resultFrom(pay, methods, false), fmt.Errorf("payments: create asaas payment: %w", err)
		}
		attach = InvoiceAttachment{
			ExternalInvoiceID: ap.ID,
			PaymentMethod:     strings.Join(methods, ","),
			PixQRCode:         qr.Payload,
			PixQRCodeURL:      s.storeQRImage(ctx, pay.ID, ap.ID, qr.EncodedImage),
			SecureURL:         ap.InvoiceURL,
		}
		upstream, paidAt = ap.Status, ap.PaidAt
	}

	// Phase-3: attach invoice (write-once) and reconcile the initial status
	if err := s.repo.AttachInvoice(ctx, pay.ID, attach); err != nil {
		if !errors.Is(err, ErrInvoiceConflict) {
			return CheckoutResult{}, err
		}
		// a request whose lease expired lost to the one that attached first
		s.logger.ErrorContext(ctx, "gateway invoice left unattached",
			"payment_id", pay.ID, "provider", pay.Provider, "invoice_id", attach.ExternalInvoiceID)
		stored, gerr := s.repo.GetPayment(ctx, pay.ID)
		if gerr != nil {
			return CheckoutResult{}, gerr
		}
		return resultFrom(stored, methods, true), nil
	}
	pay, err = s.repo.GetPayment(ctx, pay.ID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if _, err := s.reconciler.Apply(ctx, &pay, s.tables.Map(pay.Provider, upstream), paidAt); err != nil {
		s.logger.ErrorContext(ctx, "initial status apply failed", "payment_id", pay.ID, "err", err)
	}

	s.logger.InfoContext(ctx, "checkout started",
		"payment_id", pay.ID, "provider", pay.Provider, "invoice_id", attach.ExternalInvoiceID,
		"tenant_id", pay.TenantID, "status", string(pay.Status))
	return resultFrom(pay, methods, false), nil
}

func (s *Service) createAsaasPayment(ctx context.Context, pay Payment, order Order, payer Payer, methods []string) (asaas.Payment, asaas.PixQRCode, error) {
	cust, err := s.asaas.FindOrCreateCustomer(ctx, asaas.Customer{
		Name:    payer.Name,
		CPFCNPJ: payer.Document,
		Email:   payer.Email,
		Phone:   payer.Phone,
	})
	if err != nil {
		return asaas.Payment{}, asaas.PixQRCode{}, err
	}

	billing := asaas.BillingUndefined
	switch {
	case len(methods) == 1 && methods[0] == iugu.MethodPix:
		billing = asaas.BillingPix
	case len(methods) == 1 && methods[0] == iugu.MethodCreditCard:
		billing = asaas.BillingCreditCard
	}

	ap, err := s.asaas.CreatePayment(ctx, asaas.CreatePaymentRequest{
		Customer:          cust.ID,
		BillingType:       billing,
		Value:             asaas.ValueFromCents(pay.AmountCents),
		DueDate:           DueDate(s.now(), s.cfg.DueDays),
		Description:       order.Description,
		ExternalReference: pay.ID,
	})
	if err != nil {
		return asaas.Payment{}, asaas.PixQRCode{}, err
	}

	var qr asaas.PixQRCode
	if contains(methods, iugu.MethodPix) {
		qr, err = s.asaas.PixQRCode(ctx, ap.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "asaas pix qr code unavailable", "payment_id", pay.ID, "invoice_id", ap.ID, "err", err)
		}
	}
	return ap, qr, nil
}

// storeQRImage saves a base64 PNG QR code under the gateway payment id and
// returns its public URL.
func (s *Service) storeQRImage(ctx context.Context, paymentID, invoiceID, encoded string) string {
	if s.images == nil || encoded == "" {
		return ""
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.WarnContext(ctx, "pix qr image not base64", "payment_id", paymentID, "err", err)
		return ""
	}
	res, err := s.images.Put(ctx, bytes.NewReader(img), storage.PutInput{
		Filename:    invoiceID + ".png",
		ContentType: "image/png",
		Size:        int64(len(img)),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "pix qr image upload failed", "payment_id", paymentID, "err", err)
		return ""
	}
	return res.URL
}

func (s *Service) recordFailure(ctx context.Context, paymentID string, err error) {
	msg := PublicMessage(err)
	if serr := s.repo.SetError(ctx, paymentID, &msg); serr != nil {
		s.logger.WarnContext(ctx, "payment error message not saved", "payment_id", paymentID, "err", serr)
	}
	if rerr := s.repo.ReleaseCheckout(ctx, paymentID); rerr != nil {
		s.logger.WarnContext(ctx, "checkout claim not released", "payment_id", paymentID, "err", rerr)
	}
	s.logger.ErrorContext(ctx, "gateway call failed", "payment_id", paymentID, "err", err)
}

type CardInput struct {
	PaymentID    string
	CardToken    string
	Installments int
}

// CardResult is what checkout callers see for every card attempt.
type CardResult struct {
	Success bool
	Message string
	Code    string
	Kind    OutcomeKind
	Status  Status
}

func (s *Service) PayWithCard(ctx context.Context, in CardInput) (CardResult, error) {
	if strings.TrimSpace(in.CardToken) == "" {
		return CardResult{}, fmt.Errorf("%w: missing card token", ErrInvalidMethod)
	}
	pay, err := s.repo.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return CardResult{}, err
	}

	switch pay.Status {
	case StatusApproved:
		return CardResult{}, ErrAlreadyPaid
	case StatusDeclined, StatusRefunded:
		return CardResult{}, fmt.Errorf("%w: payment %s", ErrInvalidInvoiceState, pay.Status)
	}
	if pay.Provider != ProviderIugu {
		return CardResult{Kind: OutcomeFailed, Message: "Pagamento com cartão indisponível para este meio de cobrança.", Status: pay.Status}, nil
	}
	ref := pay.InvoiceRef()
	if ref == "" {
		return CardResult{}, fmt.Errorf("%w: no invoice yet", ErrInvalidInvoiceState)
	}

	out, err := s.charger.ChargeCard(ctx, ChargeRequest{
		InvoiceID:    ref,
		TenantID:     pay.TenantID,
		CardToken:    in.CardToken,
		Installments: in.Installments,
		Payer:        Payer{Name: pay.PayerName, Document: pay.PayerDocument, Email: pay.PayerEmail},
		Order:        Order{ID: pay.AppointmentID, AmountCents: pay.AmountCents},
	})
	if errors.Is(err, ErrAlreadyPaid) {
		synced, perr := s.poller.Poll(ctx, pay.ID)
		if perr != nil {
			s.logger.WarnContext(ctx, "sync after already-paid failed", "payment_id", pay.ID, "err", perr)
			synced = pay
		}
		return CardResult{Success: true, Kind: OutcomeSuccess, Message: "Pagamento já confirmado.", Status: synced.Status}, nil
	}
	if err != nil {
		return CardResult{}, err
	}

	if out.InvoiceID != "" && out.InvoiceID != ref {
		if err := s.repo.SetChargeInvoice(ctx, pay.ID, out.InvoiceID); err != nil {
			return CardResult{}, err
		}
		pay.ChargeInvoiceID = &out.InvoiceID
	}

	if out.Success {
		var paidAt *time.Time
		if out.Invoice != nil {
			paidAt = out.Invoice.PaidAt
		}
		if _, err := s.reconciler.Apply(ctx, &pay, StatusApproved, paidAt); err != nil {
			s.logger.ErrorContext(ctx, "approval apply failed", "payment_id", pay.ID, "err", err)
		}
		return CardResult{Success: true, Kind: OutcomeSuccess, Message: "Pagamento aprovado.", Status: pay.Status}, nil
	}

	// A losing concurrent attempt is told the invoice is paid; check before
	// reporting a decline.
	if synced, perr := s.poller.Poll(ctx, pay.ID); perr == nil && synced.Status == StatusApproved {
		return CardResult{Success: true, Kind: OutcomeSuccess, Message: "Pagamento já confirmado.", Status: synced.Status}, nil
	}

	msg := out.Message
	if err := s.repo.SetError(ctx, pay.ID, &msg); err != nil {
		s.logger.WarnContext(ctx, "payment error message not saved", "payment_id", pay.ID, "err", err)
	}
	return CardResult{Kind: out.Kind, Message: out.Message, Code: out.Code, Status: pay.Status}, nil
}

// PublicMessage is a payer-safe description of a gateway or domain error.
func PublicMessage(err error) string {
	if apiErr, ok := iugu.AsAPIError(err); ok {
		return apiErr.Message
	}
	if apiErr, ok := asaas.AsAPIError(err); ok {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		return "Esta fatura já foi paga."
	case errors.Is(err, ErrInvalidInvoiceState):
		return "Esta fatura não pode mais ser paga."
	case errors.Is(err, ErrInvalidMethod):
		return "Forma de pagamento inválida."
	}
	return transportFailure
}

func resultFrom(p Payment, methods []string, idempotent bool) CheckoutResult {
	r := CheckoutResult{
		PaymentID:  p.ID,
		Provider:   p.Provider,
		Status:     p.Status,
		Methods:    methods,
		Idempotent: idempotent,
	}
	if p.ExternalInvoiceID != nil {
		r.InvoiceID = *p.ExternalInvoiceID
	}
	if p.PixQRCode != nil {
		r.PixQRCode = *p.PixQRCode
	}
	if p.PixQRCodeURL != nil {
		r.PixQRCodeURL = *p.PixQRCodeURL
	}
	if p.SecureURL != nil {
		r.SecureURL = *p.SecureURL
	}
	return r
}
