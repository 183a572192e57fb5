package asaas

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

const (
	BillingPix        = "PIX"
	BillingCreditCard = "CREDIT_CARD"
	BillingUndefined  = "UNDEFINED"
)

var ErrMalformedPayment = errors.New("asaas: payment payload not recognized")

type CreatePaymentRequest struct {
	Customer          string
	BillingType       string
	Value             decimal.Decimal
	DueDate           string
	Description       string
	ExternalReference string
}

// MarshalJSON sends value as a JSON number.
func (r CreatePaymentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Customer          string          `json:"customer"`
		BillingType       string          `json:"billingType"`
		Value             json.RawMessage `json:"value"`
		DueDate           string          `json:"dueDate"`
		Description       string          `json:"description,omitempty"`
		ExternalReference string          `json:"externalReference,omitempty"`
	}{
		Customer:          r.Customer,
		BillingType:       r.BillingType,
		Value:             json.RawMessage(r.Value.StringFixed(2)),
		DueDate:           r.DueDate,
		Description:       r.Description,
		ExternalReference: r.ExternalReference,
	})
}

type Payment struct {
	ID                string
	Status            string
	BillingType       string
	Value             decimal.Decimal
	ExternalReference string
	InvoiceURL        string
	PaidAt            *time.Time
	Raw               gjson.Result
}

type PixQRCode struct {
	EncodedImage string
	Payload      string
}

// ValueFromCents converts cents to the reais value Asaas expects.
func ValueFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	doc, err := c.do(ctx, http.MethodPost, "/v3/payments", req)
	if err != nil {
		return Payment{}, err
	}
	return paymentFrom(doc)
}

func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	doc, err := c.do(ctx, http.MethodGet, "/v3/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return Payment{}, err
	}
	return paymentFrom(doc)
}

func (c *Client) RefundPayment(ctx context.Context, id string) (Payment, error) {
	doc, err := c.do(ctx, http.MethodPost, "/v3/payments/"+url.PathEscape(id)+"/refund", nil)
	if err != nil {
		return Payment{}, err
	}
	return paymentFrom(doc)
}

func (c *Client) DeletePayment(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v3/payments/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) PixQRCode(ctx context.Context, id string) (PixQRCode, error) {
	doc, err := c.do(ctx, http.MethodGet, "/v3/payments/"+url.PathEscape(id)+"/pixQrCode", nil)
	if err != nil {
		return PixQRCode{}, err
	}
	var qr PixQRCode
	qr.EncodedImage, _ = extract.String(doc, "encodedImage")
	qr.Payload, _ = extract.String(doc, "payload")
	return qr, nil
}

// ParsePayment reads a payment at the root or under "payment" (webhook
// envelopes).
func ParsePayment(doc gjson.Result) (Payment, bool) {
	obj, ok := extract.First(doc,
		extract.ObjectAt("payment", "id"),
		extract.ObjectAt("", "id", "status"),
	)
	if !ok {
		return Payment{}, false
	}
	p := Payment{Raw: obj}
	p.ID, _ = extract.String(obj, "id")
	status, _ := extract.String(obj, "status")
	p.Status = strings.ToUpper(status)
	p.BillingType, _ = extract.String(obj, "billingType")
	p.ExternalReference, _ = extract.String(obj, "externalReference")
	p.InvoiceURL, _ = extract.String(obj, "invoiceUrl")
	if s, ok := extract.String(obj, "value"); ok {
		p.Value, _ = decimal.NewFromString(s)
	}
	if t, ok := extract.First(obj,
		extract.TimeAt("clientPaymentDate"),
		extract.TimeAt("paymentDate"),
		extract.TimeAt("confirmedDate"),
	); ok {
		p.PaidAt = &t
	}
	return p, true
}

func paymentFrom(doc gjson.Result) (Payment, error) {
	p, ok := ParsePayment(doc)
	if !ok {
		return Payment{}, ErrMalformedPayment
	}
	return p, nil
}
