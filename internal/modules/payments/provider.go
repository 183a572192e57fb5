package payments

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/asaas"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
)

// IuguGateway is the part of the Iugu client the payment core calls.
type IuguGateway interface {
	MasterToken() string
	SubAccountTokens(ctx context.Context) (gjson.Result, error)
	CreateInvoice(ctx context.Context, token string, req iugu.CreateInvoiceRequest) (iugu.Invoice, error)
	GetInvoice(ctx context.Context, token, id string) (iugu.Invoice, error)
	CancelInvoice(ctx context.Context, token, id string) (iugu.Invoice, error)
	RefundInvoice(ctx context.Context, token, id string) (iugu.Invoice, error)
	ChargeInvoice(ctx context.Context, token, invoiceID string, req iugu.InvoiceChargeRequest) (iugu.Response, error)
	Charge(ctx context.Context, token string, req iugu.DirectChargeRequest) (iugu.Response, error)
}

// AsaasGateway is the part of the Asaas client the payment core calls.
type AsaasGateway interface {
	Configured() bool
	FindOrCreateCustomer(ctx context.Context, in asaas.Customer) (asaas.Customer, error)
	CreatePayment(ctx context.Context, req asaas.CreatePaymentRequest) (asaas.Payment, error)
	GetPayment(ctx context.Context, id string) (asaas.Payment, error)
	RefundPayment(ctx context.Context, id string) (asaas.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	PixQRCode(ctx context.Context, id string) (asaas.PixQRCode, error)
}

// Notifier is told about payments reaching a final outcome.
type Notifier interface {
	PaymentApproved(ctx context.Context, p Payment) error
	PaymentDeclined(ctx context.Context, p Payment) error
}

// Fulfiller marks the order behind a payment as completed. It reports
// whether the order changed.
type Fulfiller interface {
	MarkCompleted(ctx context.Context, appointmentID string) (bool, error)
}

var (
	_ IuguGateway  = (*iugu.Client)(nil)
	_ AsaasGateway = (*asaas.Client)(nil)
)
