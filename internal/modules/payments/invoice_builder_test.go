package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
)

type fixedSplit struct{ split *Split }

func (f fixedSplit) Compute(_ context.Context, _ string, usingSub bool) *Split {
	if !usingSub {
		return nil
	}
	return f.split
}

func newTestBuilder(gw IuguGateway, tok Token, split splitComputer) (*InvoiceBuilder, *[]time.Duration) {
	b := NewInvoiceBuilder(gw, staticCreds{tok: tok}, split, BuilderConfig{
		WebhookBaseURL:  "https://vistoria.example.com/",
		DueDays:         1,
		PixPollAttempts: 3,
		PixPollDelay:    2 * time.Second,
	})
	var slept []time.Duration
	b.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	b.now = func() time.Time { return time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600)) }
	return b, &slept
}

func TestCreateInvoice_PixPayloadArrivesOnSecondPoll(t *testing.T) {
	gw := newFakeIugu()
	gw.createFn = func(req iugu.CreateInvoiceRequest) (iugu.Invoice, error) {
		return iugu.Invoice{ID: "INV1", Status: "pending", PayableWith: req.PayableWith, TotalCents: 15000}, nil
	}
	gw.getSeq["INV1"] = []iugu.Invoice{
		{ID: "INV1", Status: "pending"},
		{ID: "INV1", Status: "pending", Pix: iugu.PixInstrument{QRCodeText: "00020101PIX", QRCodeImageURL: "https://qr/INV1.png"}},
	}
	b, slept := newTestBuilder(gw, Token{Value: "sub", SubAccount: true}, noSplit{})

	inv, err := b.CreateInvoice(context.Background(), InvoiceRequest{
		Order:          Order{ID: "A1", Description: "Vistoria", AmountCents: 15000},
		Payer:          Payer{Name: "Ana", Document: "12345678900", Email: "ana@example.com"},
		AllowedMethods: "pix",
		TenantID:       "T1",
	})
	require.NoError(t, err)

	assert.Equal(t, "INV1", inv.ID)
	assert.Equal(t, "00020101PIX", inv.Pix.QRCodeText)
	assert.Equal(t, "https://qr/INV1.png", inv.Pix.QRCodeImageURL)
	assert.Equal(t, 2, gw.getCalls["INV1"])
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)

	require.Len(t, gw.created, 1)
	req := gw.created[0]
	assert.Equal(t, []string{"pix"}, req.PayableWith)
	assert.Equal(t, "2024-03-07", req.DueDate)
	assert.Equal(t, "https://vistoria.example.com/webhooks/iugu", req.NotificationURL)
	assert.Equal(t, []iugu.Item{{Description: "Vistoria", Quantity: 1, PriceCents: 15000}}, req.Items)
	assert.Equal(t, "sub", gw.createToken[0])
}

func TestCreateInvoice_GivesUpAfterAttempts(t *testing.T) {
	gw := newFakeIugu()
	gw.createFn = func(req iugu.CreateInvoiceRequest) (iugu.Invoice, error) {
		return iugu.Invoice{ID: "INV2", Status: "pending", PayableWith: req.PayableWith}, nil
	}
	gw.getSeq["INV2"] = []iugu.Invoice{{ID: "INV2", Status: "pending"}}
	b, slept := newTestBuilder(gw, Token{Value: "m"}, noSplit{})

	inv, err := b.CreateInvoice(context.Background(), InvoiceRequest{Order: Order{AmountCents: 100}, AllowedMethods: "pix,credit_card"})
	require.NoError(t, err)
	assert.Equal(t, "INV2", inv.ID)
	assert.False(t, inv.Pix.Ready())
	assert.Equal(t, 3, gw.getCalls["INV2"])
	assert.Len(t, *slept, 3)
}

func TestCreateInvoice_CardOnlySkipsPolling(t *testing.T) {
	gw := newFakeIugu()
	b, slept := newTestBuilder(gw, Token{Value: "m"}, noSplit{})

	_, err := b.CreateInvoice(context.Background(), InvoiceRequest{Order: Order{AmountCents: 100}, AllowedMethods: "credit_card"})
	require.NoError(t, err)
	assert.Empty(t, *slept)
	assert.Empty(t, gw.getCalls)
}

func TestCreateInvoice_SplitOnlyWithSubAccount(t *testing.T) {
	split := &Split{RecipientAccountID: "MASTER", Percent: decimal.NewFromInt(12)}

	gw := newFakeIugu()
	b, _ := newTestBuilder(gw, Token{Value: "sub", SubAccount: true}, fixedSplit{split: split})
	_, err := b.CreateInvoice(context.Background(), InvoiceRequest{Order: Order{AmountCents: 100}, AllowedMethods: "credit_card"})
	require.NoError(t, err)
	require.Len(t, gw.created[0].Splits, 1)
	assert.Equal(t, "MASTER", gw.created[0].Splits[0].RecipientAccountID)

	gw = newFakeIugu()
	b, _ = newTestBuilder(gw, Token{Value: "master-token", AccountID: "master"}, fixedSplit{split: split})
	_, err = b.CreateInvoice(context.Background(), InvoiceRequest{Order: Order{AmountCents: 100}, AllowedMethods: "credit_card"})
	require.NoError(t, err)
	assert.Empty(t, gw.created[0].Splits)
}

func TestCreateInvoice_RejectsUnknownMethod(t *testing.T) {
	gw := newFakeIugu()
	b, _ := newTestBuilder(gw, Token{Value: "m"}, noSplit{})
	_, err := b.CreateInvoice(context.Background(), InvoiceRequest{AllowedMethods: "boleto"})
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.Empty(t, gw.created)
}

func TestDueDate_UsesUTCCalendar(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	// 22:00 in Brasília is already the next day in UTC.
	assert.Equal(t, "2024-03-06", DueDate(time.Date(2024, 3, 5, 22, 0, 0, 0, brt), 0))
	assert.Equal(t, "2024-03-07", DueDate(time.Date(2024, 3, 5, 22, 0, 0, 0, brt), 1))
	assert.Equal(t, "2024-03-01", DueDate(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), 1))
	assert.Equal(t, "2024-02-29", DueDate(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), -5))
}

func TestParseAllowedMethods(t *testing.T) {
	for _, in := range []string{"pix", "credit_card", "pix,credit_card", " credit_card , pix "} {
		_, err := ParseAllowedMethods(in)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"", "boleto", "pix,bank_slip"} {
		_, err := ParseAllowedMethods(in)
		assert.ErrorIs(t, err, ErrInvalidMethod, in)
	}
}
