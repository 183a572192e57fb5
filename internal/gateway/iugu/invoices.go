package iugu

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

var ErrMalformedInvoice = errors.New("iugu: invoice payload not recognized")

func (c *Client) CreateInvoice(ctx context.Context, token string, req CreateInvoiceRequest) (Invoice, error) {
	res, err := c.do(ctx, http.MethodPost, "/v1/invoices", token, req)
	if err != nil {
		return Invoice{}, err
	}
	return invoiceFrom(res)
}

func (c *Client) GetInvoice(ctx context.Context, token, id string) (Invoice, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/invoices/"+url.PathEscape(id), token, nil)
	if err != nil {
		return Invoice{}, err
	}
	return invoiceFrom(res)
}

func (c *Client) CancelInvoice(ctx context.Context, token, id string) (Invoice, error) {
	res, err := c.do(ctx, http.MethodPut, "/v1/invoices/"+url.PathEscape(id)+"/cancel", token, nil)
	if err != nil {
		return Invoice{}, err
	}
	return invoiceFrom(res)
}

func (c *Client) RefundInvoice(ctx context.Context, token, id string) (Invoice, error) {
	res, err := c.do(ctx, http.MethodPost, "/v1/invoices/"+url.PathEscape(id)+"/refund", token, nil)
	if err != nil {
		return Invoice{}, err
	}
	return invoiceFrom(res)
}

func invoiceFrom(res Response) (Invoice, error) {
	inv, ok := ParseInvoice(res.Doc)
	if !ok {
		return Invoice{}, ErrMalformedInvoice
	}
	return inv, nil
}
