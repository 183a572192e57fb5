package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/middleware"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/validation"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/apperr"
)

type checkoutService interface {
	StartCheckout(ctx context.Context, in payments.CheckoutInput) (payments.CheckoutResult, error)
	PayWithCard(ctx context.Context, in payments.CardInput) (payments.CardResult, error)
}

type statusPoller interface {
	Poll(ctx context.Context, paymentID string) (payments.Payment, error)
}

type PaymentsHandler struct {
	Logger   *slog.Logger
	Checkout checkoutService
	Poller   statusPoller
}

func NewPaymentsHandler(logger *slog.Logger, checkout checkoutService, poller statusPoller) *PaymentsHandler {
	return &PaymentsHandler{Logger: logger, Checkout: checkout, Poller: poller}
}

type payerInput struct {
	Name     string `json:"name" binding:"required,max=255"`
	Document string `json:"document" binding:"omitempty,numeric,min=11,max=14"`
	Email    string `json:"email" binding:"omitempty,email,max=255"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

type checkoutInput struct {
	AppointmentID  string     `json:"appointment_id" binding:"required,max=36"`
	IdempotencyKey string     `json:"idempotency_key" binding:"max=64"`
	Methods        string     `json:"methods" binding:"required"`
	Provider       string     `json:"provider" binding:"omitempty,oneof=iugu asaas"`
	Payer          payerInput `json:"payer"`
}

type checkoutView struct {
	Success      bool     `json:"success"`
	PaymentID    string   `json:"payment_id"`
	InvoiceID    string   `json:"invoice_id,omitempty"`
	Provider     string   `json:"provider"`
	Status       string   `json:"status"`
	Methods      []string `json:"methods"`
	PixQRCode    string   `json:"pix_qr_code,omitempty"`
	PixQRCodeURL string   `json:"pix_qr_code_url,omitempty"`
	SecureURL    string   `json:"secure_url,omitempty"`
	Idempotent   bool     `json:"idempotent"`
}

// POST /api/checkout
// The idempotency key comes from the body or the Idempotency-Key header.
func (h *PaymentsHandler) StartCheckout(c *gin.Context) {
	var in checkoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Dados de pagamento inválidos.", validation.FromBindError(err, &in)))
		return
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	if in.IdempotencyKey == "" || len(in.IdempotencyKey) > 64 {
		middleware.Fail(c, apperr.InvalidErr("Dados de pagamento inválidos.",
			validation.FieldErrors{"idempotency_key": "Campo obrigatório."}))
		return
	}

	res, err := h.Checkout.StartCheckout(c.Request.Context(), payments.CheckoutInput{
		AppointmentID:  in.AppointmentID,
		IdempotencyKey: in.IdempotencyKey,
		Methods:        in.Methods,
		Provider:       in.Provider,
		Payer: payments.Payer{
			Name:     strings.TrimSpace(in.Payer.Name),
			Document: in.Payer.Document,
			Email:    strings.TrimSpace(in.Payer.Email),
			Phone:    in.Payer.Phone,
		},
	})
	if err != nil {
		if res.PaymentID != "" {
			// the pending row exists; the gateway call failed
			middleware.Fail(c, apperr.UnavailableErr(payments.PublicMessage(err), err))
			return
		}
		middleware.Fail(c, paymentError(err))
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	c.JSON(status, checkoutView{
		Success:      true,
		PaymentID:    res.PaymentID,
		InvoiceID:    res.InvoiceID,
		Provider:     res.Provider,
		Status:       string(res.Status),
		Methods:      res.Methods,
		PixQRCode:    res.PixQRCode,
		PixQRCodeURL: res.PixQRCodeURL,
		SecureURL:    res.SecureURL,
		Idempotent:   res.Idempotent,
	})
}

type cardInput struct {
	CardToken    string `json:"card_token" binding:"required,max=128"`
	Installments int    `json:"installments" binding:"omitempty,min=1,max=12"`
}

type cardView struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
}

// POST /api/payments/:id/card
func (h *PaymentsHandler) PayWithCard(c *gin.Context) {
	var in cardInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Dados do cartão inválidos.", validation.FromBindError(err, &in)))
		return
	}

	res, err := h.Checkout.PayWithCard(c.Request.Context(), payments.CardInput{
		PaymentID:    c.Param("id"),
		CardToken:    in.CardToken,
		Installments: in.Installments,
	})
	if err != nil {
		middleware.Fail(c, paymentError(err))
		return
	}

	if !res.Success {
		h.Logger.InfoContext(c.Request.Context(), "card charge not approved",
			"payment_id", c.Param("id"), "kind", string(res.Kind), "code", res.Code)
	}
	c.JSON(cardStatus(res.Kind), cardView{
		Success: res.Success,
		Message: res.Message,
		Code:    res.Code,
		Status:  string(res.Status),
	})
}

func cardStatus(kind payments.OutcomeKind) int {
	switch kind {
	case payments.OutcomeSuccess:
		return http.StatusOK
	case payments.OutcomeDeclined:
		return http.StatusPaymentRequired
	case payments.OutcomeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

type statusView struct {
	Success      bool       `json:"success"`
	PaymentID    string     `json:"payment_id"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	InvoiceID    string     `json:"invoice_id,omitempty"`
	PixQRCode    string     `json:"pix_qr_code,omitempty"`
	PixQRCodeURL string     `json:"pix_qr_code_url,omitempty"`
	SecureURL    string     `json:"secure_url,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// GET /api/payments/:id/status
// A gateway error still returns the stored state, flagged unsuccessful.
func (h *PaymentsHandler) Status(c *gin.Context) {
	p, err := h.Poller.Poll(c.Request.Context(), c.Param("id"))
	if err != nil && p.ID == "" {
		middleware.Fail(c, paymentError(err))
		return
	}
	v := paymentView(p)
	v.Success = err == nil
	if err != nil {
		v.Message = payments.PublicMessage(err)
	} else if p.ErrorMessage != nil && p.Status == payments.StatusPending {
		v.Message = *p.ErrorMessage
	}
	c.JSON(http.StatusOK, v)
}

func paymentView(p payments.Payment) statusView {
	return statusView{
		PaymentID:    p.ID,
		Provider:     p.Provider,
		Status:       string(p.Status),
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		InvoiceID:    p.InvoiceRef(),
		PixQRCode:    deref(p.PixQRCode),
		PixQRCodeURL: deref(p.PixQRCodeURL),
		SecureURL:    deref(p.SecureURL),
		PaidAt:       p.PaidAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
