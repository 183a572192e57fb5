package asaas

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

var ErrMalformedCustomer = errors.New("asaas: customer payload not recognized")

type Customer struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	CPFCNPJ string `json:"cpfCnpj"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"mobilePhone,omitempty"`
}

// FindOrCreateCustomer looks the payer up by document and creates it when
// absent.
func (c *Client) FindOrCreateCustomer(ctx context.Context, in Customer) (Customer, error) {
	if in.CPFCNPJ != "" {
		doc, err := c.do(ctx, http.MethodGet, "/v3/customers?cpfCnpj="+url.QueryEscape(in.CPFCNPJ), nil)
		if err != nil {
			return Customer{}, err
		}
		if cust, ok := parseCustomer(doc.Get("data.0")); ok {
			return cust, nil
		}
	}

	in.ID = ""
	doc, err := c.do(ctx, http.MethodPost, "/v3/customers", in)
	if err != nil {
		return Customer{}, err
	}
	cust, ok := parseCustomer(doc)
	if !ok {
		return Customer{}, ErrMalformedCustomer
	}
	return cust, nil
}

func parseCustomer(doc gjson.Result) (Customer, bool) {
	id, ok := extract.String(doc, "id")
	if !ok {
		return Customer{}, false
	}
	cust := Customer{ID: id}
	cust.Name, _ = extract.String(doc, "name")
	cust.CPFCNPJ, _ = extract.String(doc, "cpfCnpj")
	cust.Email, _ = extract.String(doc, "email")
	return cust, true
}
