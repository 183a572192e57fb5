package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
)

const maxWebhookBody = 1 << 20

type webhookProcessor interface {
	Handle(ctx context.Context, ev payments.WebhookEvent) (payments.WebhookResult, error)
}

type WebhookHandler struct {
	Logger     *slog.Logger
	WebhookSvc webhookProcessor
}

func NewWebhookHandler(logger *slog.Logger, svc webhookProcessor) *WebhookHandler {
	return &WebhookHandler{Logger: logger, WebhookSvc: svc}
}

// POST /webhooks/iugu
// Iugu sends form-encoded triggers; JSON is accepted too.
func (h *WebhookHandler) Iugu(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	h.handle(c, payments.ProviderIugu, func(body []byte) (payments.WebhookEvent, error) {
		return payments.ParseIuguWebhook(contentType, body)
	})
}

// POST /webhooks/asaas
func (h *WebhookHandler) Asaas(c *gin.Context) {
	h.handle(c, payments.ProviderAsaas, payments.ParseAsaasWebhook)
}

// handle answers 413 for bodies over maxWebhookBody and 500 for bodies that
// cannot be read or decoded. Once a delivery parses, every outcome is 200 so
// the sender does not retry.
func (h *WebhookHandler) handle(c *gin.Context, provider string, parse func([]byte) (payments.WebhookEvent, error)) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Logger.ErrorContext(c.Request.Context(), "webhook body too large",
			"provider", provider, "limit_bytes", tooLarge.Limit, "content_length", c.Request.ContentLength)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false})
		return
	}
	if err != nil {
		h.Logger.WarnContext(c.Request.Context(), "webhook body unreadable", "provider", provider, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	ev, err := parse(body)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, payments.ErrMalformedWebhook) {
			level = slog.LevelWarn
		}
		h.Logger.Log(c.Request.Context(), level, "webhook body not understood", "provider", provider, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	res, err := h.process(c.Request.Context(), ev)
	if err != nil {
		h.Logger.ErrorContext(c.Request.Context(), "webhook apply failed",
			"provider", provider, "event", ev.EventType, "invoice_id", ev.ExternalID, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "matched": res.Matched, "changed": res.Changed})
}

func (h *WebhookHandler) process(ctx context.Context, ev payments.WebhookEvent) (res payments.WebhookResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, panicError{r})
		}
	}()
	return h.WebhookSvc.Handle(ctx, ev)
}
