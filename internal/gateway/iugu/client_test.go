package iugu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

func TestCreateInvoice_SendsBasicAuthAndSplit(t *testing.T) {
	var gotUser string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _, _ = r.BasicAuth()
		assert.Equal(t, "/v1/invoices", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &gotBody))
		_, _ = w.Write([]byte(`{"id":"INV1","status":"pending","payable_with":["pix"],"total_cents":15000,
			"pix":{"qrcode_text":"000201PIX","qrcode":"https://qr/img.png"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MasterToken: "master"})
	inv, err := c.CreateInvoice(context.Background(), "sub-token", CreateInvoiceRequest{
		Email:       "a@b.com",
		DueDate:     "2024-03-05",
		Items:       []Item{{Description: "Vistoria", Quantity: 1, PriceCents: 15000}},
		PayableWith: []string{MethodPix},
		Splits:      []Split{{RecipientAccountID: "MASTER", Percent: decimal.RequireFromString("12.5")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "sub-token", gotUser)
	splits := gotBody["splits"].([]any)
	require.Len(t, splits, 1)
	assert.Equal(t, 12.5, splits[0].(map[string]any)["percent"])

	assert.Equal(t, "INV1", inv.ID)
	assert.Equal(t, int64(15000), inv.TotalCents)
	assert.Equal(t, "000201PIX", inv.Pix.QRCodeText)
	assert.Equal(t, "https://qr/img.png", inv.Pix.QRCodeImageURL)
	assert.False(t, inv.CardOnly())
}

func TestDo_NonSuccessReturnsAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string", body: `{"errors":"token inválido"}`, want: "token inválido"},
		{name: "list", body: `{"errors":["a","b"]}`, want: "a, b"},
		{name: "nested object", body: `{"errors":{"email":["não pode ficar em branco"],"due_date":["inválida"]}}`,
			want: "due_date: inválida; email: não pode ficar em branco"},
		{name: "message", body: `{"message":"Unauthorized"}`, want: "Unauthorized"},
		{name: "empty", body: ``, want: "erro desconhecido do gateway (HTTP 422)"},
		{name: "html", body: `<html>oops</html>`, want: "erro desconhecido do gateway (HTTP 422)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, MasterToken: "m"})
			_, err := c.GetInvoice(context.Background(), "m", "X")
			require.Error(t, err)
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestParseInvoice_WrappedAndAlternateKeys(t *testing.T) {
	doc, err := extract.Decode([]byte(`{"success":true,"invoice":{"id":"INV9","status":"PAID",
		"payable_with":"credit_card","paid_at":"2024-03-05T10:00:00-03:00",
		"pix":{"qr_code_text":"EMV"}}}`))
	require.NoError(t, err)

	inv, ok := ParseInvoice(doc)
	require.True(t, ok)
	assert.Equal(t, "INV9", inv.ID)
	assert.Equal(t, "paid", inv.Status)
	assert.True(t, inv.CardOnly())
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, 13, inv.PaidAt.Hour())
	assert.Equal(t, "EMV", inv.Pix.QRCodeText)
}

func TestParseMethods(t *testing.T) {
	assert.Equal(t, []string{"credit_card", "pix"}, ParseMethods(" credit_card , PIX,pix"))
	assert.Nil(t, ParseMethods(" , "))
}

func TestDirectChargeRequest_HasNoItems(t *testing.T) {
	b, err := json.Marshal(DirectChargeRequest{InvoiceID: "I", Token: "tok", Months: 2,
		Payer: ChargePayer{Name: "Ana", CPFCNPJ: "123"}, Email: "a@b.com"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "items")
	assert.Equal(t, "I", m["invoice_id"])
}
