package iugu

import (
	"context"
	"net/http"
	"net/url"
)

type InvoiceChargeRequest struct {
	Token  string `json:"token"`
	Months int    `json:"months,omitempty"`
}

// DirectChargeRequest targets the generic charge endpoint. It must not carry
// items: the gateway rejects invoice_id and items together.
type DirectChargeRequest struct {
	InvoiceID string      `json:"invoice_id"`
	Token     string      `json:"token"`
	Months    int         `json:"months,omitempty"`
	Payer     ChargePayer `json:"payer"`
	Email     string      `json:"email,omitempty"`
}

type ChargePayer struct {
	Name    string `json:"name,omitempty"`
	CPFCNPJ string `json:"cpf_cnpj,omitempty"`
}

// ChargeInvoice captures a tokenized card against an existing invoice. The
// raw Response is returned on both success and *APIError so the caller can
// classify it.
func (c *Client) ChargeInvoice(ctx context.Context, token, invoiceID string, req InvoiceChargeRequest) (Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/invoices/"+url.PathEscape(invoiceID)+"/charge", token, req)
}

func (c *Client) Charge(ctx context.Context, token string, req DirectChargeRequest) (Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/charge", token, req)
}
