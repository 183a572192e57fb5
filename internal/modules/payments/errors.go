package payments

import "errors"

var (
	ErrAlreadyPaid         = errors.New("invoice already paid")
	ErrInvalidInvoiceState = errors.New("invoice not chargeable in its current state")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotRefundable       = errors.New("payment not refundable")
	ErrNotCancelable       = errors.New("payment not cancelable")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNotPayable          = errors.New("appointment not payable")
	ErrUnsupported         = errors.New("operation not supported by provider")
	ErrCheckoutInProgress  = errors.New("checkout already in progress")
	ErrInvoiceConflict     = errors.New("payment already bound to another invoice")
)
