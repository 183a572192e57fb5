package handlers

import (
	"errors"
	"fmt"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/asaas"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/apperr"
)

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }

// paymentError maps domain and gateway errors to HTTP-facing errors.
func paymentError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	var ae *apperr.AppError
	switch {
	case errors.Is(err, payments.ErrPaymentNotFound):
		ae = apperr.NotFoundErr("Pagamento não encontrado.")
	case errors.Is(err, payments.ErrAppointmentNotFound):
		ae = apperr.NotFoundErr("Agendamento não encontrado.")
	case errors.Is(err, payments.ErrAlreadyPaid):
		ae = apperr.ConflictErr("Esta fatura já foi paga.")
	case errors.Is(err, payments.ErrInvalidInvoiceState):
		ae = apperr.ConflictErr("Esta fatura não pode mais ser paga.")
	case errors.Is(err, payments.ErrNotPayable):
		ae = apperr.ConflictErr("Este agendamento não aceita pagamento.")
	case errors.Is(err, payments.ErrCheckoutInProgress):
		ae = apperr.ConflictErr("Cobrança em processamento. Tente novamente em instantes.")
	case errors.Is(err, payments.ErrNotRefundable):
		ae = apperr.ConflictErr("Somente pagamentos aprovados podem ser estornados.")
	case errors.Is(err, payments.ErrNotCancelable):
		ae = apperr.ConflictErr("Este pagamento não pode ser cancelado.")
	case errors.Is(err, payments.ErrInvalidMethod):
		ae = apperr.InvalidErr("Forma de pagamento inválida.", nil)
	case errors.Is(err, payments.ErrUnsupported):
		ae = apperr.InvalidErr("Operação não suportada por este meio de cobrança.", nil)
	default:
		if _, ok := iugu.AsAPIError(err); ok {
			return apperr.UnavailableErr(payments.PublicMessage(err), err)
		}
		if _, ok := asaas.AsAPIError(err); ok {
			return apperr.UnavailableErr(payments.PublicMessage(err), err)
		}
		return apperr.Wrap(err)
	}
	return ae.WithCause(err)
}
