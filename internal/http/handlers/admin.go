package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/middleware"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/validation"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/apperr"
)

type refunder interface {
	Refund(ctx context.Context, paymentID string) (payments.Payment, error)
	Cancel(ctx context.Context, paymentID string) (payments.Payment, error)
}

type tokenInvalidator interface {
	Invalidate(subAccountID string) int
}

type AdminHandler struct {
	Logger  *slog.Logger
	Refunds refunder
	Tokens  tokenInvalidator
}

func NewAdminHandler(logger *slog.Logger, refunds refunder, tokens tokenInvalidator) *AdminHandler {
	return &AdminHandler{Logger: logger, Refunds: refunds, Tokens: tokens}
}

// POST /admin/payments/:id/refund
func (h *AdminHandler) Refund(c *gin.Context) {
	p, err := h.Refunds.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, paymentError(err))
		return
	}
	h.Logger.InfoContext(c.Request.Context(), "admin refund", "payment_id", p.ID, "request_id", middleware.GetRequestID(c))
	v := paymentView(p)
	v.Success = true
	c.JSON(http.StatusOK, v)
}

// POST /admin/payments/:id/cancel
func (h *AdminHandler) Cancel(c *gin.Context) {
	p, err := h.Refunds.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, paymentError(err))
		return
	}
	h.Logger.InfoContext(c.Request.Context(), "admin cancel", "payment_id", p.ID, "request_id", middleware.GetRequestID(c))
	v := paymentView(p)
	v.Success = true
	c.JSON(http.StatusOK, v)
}

type invalidateInput struct {
	AccountID string `json:"account_id" binding:"required,max=128"`
}

// POST /admin/gateway/tokens/invalidate
// account_id "*" drops every cached sub-account token.
func (h *AdminHandler) InvalidateTokens(c *gin.Context) {
	var in invalidateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Conta inválida.", validation.FromBindError(err, &in)))
		return
	}
	n := h.Tokens.Invalidate(strings.TrimSpace(in.AccountID))
	h.Logger.InfoContext(c.Request.Context(), "gateway tokens invalidated", "account_id", in.AccountID, "removed", n)
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": n})
}
