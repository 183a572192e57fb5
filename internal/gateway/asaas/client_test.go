package asaas

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFindOrCreateCustomer_ReusesExisting(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("access_token"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "12345678900", r.URL.Query().Get("cpfCnpj"))
			_, _ = w.Write([]byte(`{"data":[{"id":"cus_1","name":"Ana","cpfCnpj":"12345678900"}]}`))
		case http.MethodPost:
			posts++
			_, _ = w.Write([]byte(`{"id":"cus_new"}`))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	cust, err := c.FindOrCreateCustomer(context.Background(), Customer{Name: "Ana", CPFCNPJ: "12345678900"})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", cust.ID)
	assert.Equal(t, 0, posts)
}

func TestFindOrCreateCustomer_CreatesWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cus_new","name":"Ana"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	cust, err := c.FindOrCreateCustomer(context.Background(), Customer{Name: "Ana", CPFCNPJ: "1"})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", cust.ID)
}

func TestCreatePayment_ValueInReais(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &body))
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"PENDING","value":150.00,"billingType":"PIX"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	p, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		Customer: "cus_1", BillingType: BillingPix, Value: ValueFromCents(15000), DueDate: "2024-03-06",
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, body["value"])
	assert.Equal(t, "pay_1", p.ID)
	assert.Equal(t, "PENDING", p.Status)
	assert.Equal(t, "150", p.Value.String())
}

func TestAPIError_JoinsDescriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalid_value","description":"Valor inválido"},{"code":"x"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	_, err := c.GetPayment(context.Background(), "pay_1")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Valor inválido; x", apiErr.Message)
}

func TestParsePayment_WebhookEnvelope(t *testing.T) {
	doc := gjson.Parse(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","status":"received","paymentDate":"2024-03-05"}}`)
	p, ok := ParsePayment(doc)
	require.True(t, ok)
	assert.Equal(t, "RECEIVED", p.Status)
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, 5, p.PaidAt.Day())
}
