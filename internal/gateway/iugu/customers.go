package iugu

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

var ErrMalformedCustomer = errors.New("iugu: customer payload not recognized")

type Customer struct {
	ID      string
	Name    string
	Email   string
	CPFCNPJ string
}

type CreateCustomerRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	CPFCNPJ string `json:"cpf_cnpj,omitempty"`
}

// FindCustomer searches by free text query (email or document) and returns
// the first hit.
func (c *Client) FindCustomer(ctx context.Context, token, query string) (Customer, bool, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/customers?query="+url.QueryEscape(query), token, nil)
	if err != nil {
		return Customer{}, false, err
	}
	items, ok := extract.Path(res.Doc, "items")
	if !ok || !items.IsArray() {
		return Customer{}, false, nil
	}
	for _, it := range items.Array() {
		if cust, ok := parseCustomer(it); ok {
			return cust, true, nil
		}
	}
	return Customer{}, false, nil
}

func (c *Client) CreateCustomer(ctx context.Context, token string, req CreateCustomerRequest) (Customer, error) {
	res, err := c.do(ctx, http.MethodPost, "/v1/customers", token, req)
	if err != nil {
		return Customer{}, err
	}
	cust, ok := parseCustomer(res.Doc)
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
	cust.Email, _ = extract.String(doc, "email")
	cust.CPFCNPJ, _ = extract.String(doc, "cpf_cnpj")
	return cust, true
}
