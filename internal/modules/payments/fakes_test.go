package payments

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/asaas"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/appointments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

// fakeIugu records every call. Unset function fields fall back to
// in-memory invoices.
type fakeIugu struct {
	mu sync.Mutex

	master        string
	subTokensFn   func(ctx context.Context) (gjson.Result, error)
	subTokenCalls int

	invoices map[string]iugu.Invoice
	// getSeq serves successive GetInvoice replies per id; the last one repeats.
	getSeq   map[string][]iugu.Invoice
	getCalls map[string]int

	createFn    func(req iugu.CreateInvoiceRequest) (iugu.Invoice, error)
	created     []iugu.CreateInvoiceRequest
	createToken []string

	chargeInvoiceFn    func(id string, req iugu.InvoiceChargeRequest) (iugu.Response, error)
	chargeInvoiceCalls []string
	chargeFn           func(req iugu.DirectChargeRequest) (iugu.Response, error)
	chargeCalls        []iugu.DirectChargeRequest

	canceled []string
	refunded []string
	gwErr    error
}

func newFakeIugu() *fakeIugu {
	return &fakeIugu{
		master:   "master-token",
		invoices: map[string]iugu.Invoice{},
		getSeq:   map[string][]iugu.Invoice{},
		getCalls: map[string]int{},
	}
}

func (f *fakeIugu) MasterToken() string { return f.master }

func (f *fakeIugu) SubAccountTokens(ctx context.Context) (gjson.Result, error) {
	f.mu.Lock()
	f.subTokenCalls++
	fn := f.subTokensFn
	f.mu.Unlock()
	if fn == nil {
		return extract.Of(map[string]any{}), nil
	}
	return fn(ctx)
}

func (f *fakeIugu) CreateInvoice(_ context.Context, token string, req iugu.CreateInvoiceRequest) (iugu.Invoice, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	f.createToken = append(f.createToken, token)
	fn := f.createFn
	n := len(f.created)
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	inv := iugu.Invoice{ID: "NEW" + string(rune('0'+n)), Status: "pending", PayableWith: req.PayableWith, Email: req.Email}
	f.mu.Lock()
	f.invoices[inv.ID] = inv
	f.mu.Unlock()
	return inv, nil
}

func (f *fakeIugu) GetInvoice(_ context.Context, _ string, id string) (iugu.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[id]++
	if f.gwErr != nil {
		return iugu.Invoice{}, f.gwErr
	}
	if seq := f.getSeq[id]; len(seq) > 0 {
		i := f.getCalls[id] - 1
		if i >= len(seq) {
			i = len(seq) - 1
		}
		return seq[i], nil
	}
	inv, ok := f.invoices[id]
	if !ok {
		return iugu.Invoice{}, &iugu.APIError{StatusCode: 404, Message: "Not Found"}
	}
	return inv, nil
}

func (f *fakeIugu) CancelInvoice(_ context.Context, _ string, id string) (iugu.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return iugu.Invoice{ID: id, Status: "canceled"}, f.gwErr
}

func (f *fakeIugu) RefundInvoice(_ context.Context, _ string, id string) (iugu.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, id)
	return iugu.Invoice{ID: id, Status: "refunded"}, f.gwErr
}

func (f *fakeIugu) ChargeInvoice(_ context.Context, _ string, id string, req iugu.InvoiceChargeRequest) (iugu.Response, error) {
	f.mu.Lock()
	f.chargeInvoiceCalls = append(f.chargeInvoiceCalls, id)
	fn := f.chargeInvoiceFn
	f.mu.Unlock()
	if fn == nil {
		return iugu.Response{StatusCode: 200, Doc: extract.Of(map[string]any{"success": true})}, nil
	}
	return fn(id, req)
}

func (f *fakeIugu) Charge(_ context.Context, _ string, req iugu.DirectChargeRequest) (iugu.Response, error) {
	f.mu.Lock()
	f.chargeCalls = append(f.chargeCalls, req)
	fn := f.chargeFn
	f.mu.Unlock()
	if fn == nil {
		return iugu.Response{StatusCode: 200, Doc: extract.Of(map[string]any{"success": true})}, nil
	}
	return fn(req)
}

func (f *fakeIugu) chargeAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chargeInvoiceCalls) + len(f.chargeCalls)
}

type fakeAsaas struct {
	mu       sync.Mutex
	payments map[string]asaas.Payment
	qr       asaas.PixQRCode
	created  []asaas.CreatePaymentRequest
	deleted  []string
	refunded []string
}

func newFakeAsaas() *fakeAsaas {
	return &fakeAsaas{payments: map[string]asaas.Payment{}}
}

func (f *fakeAsaas) Configured() bool { return true }

func (f *fakeAsaas) FindOrCreateCustomer(_ context.Context, in asaas.Customer) (asaas.Customer, error) {
	in.ID = "cus_1"
	return in, nil
}

func (f *fakeAsaas) CreatePayment(_ context.Context, req asaas.CreatePaymentRequest) (asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	p := asaas.Payment{ID: "pay_1", Status: "PENDING", BillingType: req.BillingType, Value: req.Value, InvoiceURL: "https://asaas/i/pay_1"}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeAsaas) GetPayment(_ context.Context, id string) (asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return asaas.Payment{}, &asaas.APIError{StatusCode: 404, Message: "not found"}
	}
	return p, nil
}

func (f *fakeAsaas) RefundPayment(_ context.Context, id string) (asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, id)
	return asaas.Payment{ID: id, Status: "REFUNDED"}, nil
}

func (f *fakeAsaas) DeletePayment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAsaas) PixQRCode(_ context.Context, _ string) (asaas.PixQRCode, error) {
	return f.qr, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	approved []string
	declined []string
}

func (n *recordingNotifier) PaymentApproved(_ context.Context, p Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, p.ID)
	return nil
}

func (n *recordingNotifier) PaymentDeclined(_ context.Context, p Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.declined = append(n.declined, p.ID)
	return nil
}

type countingFulfiller struct {
	mu      sync.Mutex
	inner   Fulfiller
	calls   int
	changed int
}

func (f *countingFulfiller) MarkCompleted(ctx context.Context, id string) (bool, error) {
	changed, err := f.inner.MarkCompleted(ctx, id)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if changed {
		f.changed++
	}
	return changed, err
}

// staticCreds resolves every tenant to the same token.
type staticCreds struct{ tok Token }

func (s staticCreds) Resolve(context.Context, string) Token { return s.tok }

type noSplit struct{}

func (noSplit) Compute(context.Context, string, bool) *Split { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "payments.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, appointments.AutoMigrate(db))
	return db
}

func seedAppointment(t *testing.T, db *gorm.DB, id, tenant string, price int64) {
	t.Helper()
	require.NoError(t, db.Create(&appointments.Appointment{
		ID: id, TenantID: tenant, PriceCents: price, Description: "Vistoria cautelar",
		Status: appointments.StatusScheduled, UpdatedAt: time.Now(),
	}).Error)
}

func seedPayment(t *testing.T, db *gorm.DB, p Payment) Payment {
	t.Helper()
	now := time.Now()
	if p.Currency == "" {
		p.Currency = "BRL"
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.Provider == "" {
		p.Provider = ProviderIugu
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = "key-" + p.ID
	}
	p.CreatedAt, p.UpdatedAt = now, now
	require.NoError(t, db.Create(&p).Error)
	return p
}

func strPtr(s string) *string { return &s }

// harness wires the reconciler stack over a sqlite database.
type harness struct {
	db         *gorm.DB
	repo       *Repo
	appts      *appointments.Repo
	fulfiller  *countingFulfiller
	notifier   *recordingNotifier
	reconciler *Reconciler
}

func newHarness(t *testing.T) *harness {
	db := newTestDB(t)
	h := &harness{db: db, repo: NewRepo(db), appts: appointments.NewRepo(db), notifier: &recordingNotifier{}}
	h.fulfiller = &countingFulfiller{inner: h.appts}
	h.reconciler = NewReconciler(h.repo, h.fulfiller, h.notifier)
	return h
}
