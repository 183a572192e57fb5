package payments

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

func (r *Repo) GetPayment(ctx context.Context, id string) (Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// FindByInvoice returns every payment referencing the gateway invoice,
// either as its original or its card-only replacement.
func (r *Repo) FindByInvoice(ctx context.Context, provider, invoiceID string) ([]Payment, error) {
	var out []Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND (external_invoice_id = ? OR charge_invoice_id = ?)", provider, invoiceID, invoiceID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// TransitionStatus is a compare-and-swap on status. It reports whether this
// call performed the change.
func (r *Repo) TransitionStatus(ctx context.Context, id string, from, to Status, paidAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	if to == StatusApproved {
		updates["error_message"] = nil
	}
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type InvoiceAttachment struct {
	ExternalInvoiceID string
	PaymentMethod     string
	PixQRCode         string
	PixQRCodeURL      string
	SecureURL         string
}

// AttachInvoice stores the gateway invoice id once. The instrument fields
// are written in the same statement, and only while the stored id is empty
// or equal to a.ExternalInvoiceID; a different stored id yields
// ErrInvoiceConflict and leaves the row untouched. With an empty id only the
// instrument fields are refreshed.
func (r *Repo) AttachInvoice(ctx context.Context, id string, a InvoiceAttachment) error {
	updates := map[string]any{"updated_at": time.Now()}
	setIf(updates, "payment_method", a.PaymentMethod)
	setIf(updates, "pix_qr_code", a.PixQRCode)
	setIf(updates, "pix_qr_code_url", a.PixQRCodeURL)
	setIf(updates, "secure_url", a.SecureURL)

	q := r.db.WithContext(ctx).Model(&Payment{}).Where("id = ?", id)
	if a.ExternalInvoiceID != "" {
		updates["external_invoice_id"] = a.ExternalInvoiceID
		q = q.Where("(external_invoice_id IS NULL OR external_invoice_id = ?)", a.ExternalInvoiceID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&Payment{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrPaymentNotFound
	}
	return ErrInvoiceConflict
}

// ReleaseCheckout drops the checkout claim so the next request with the
// same idempotency key may call the gateway again.
func (r *Repo) ReleaseCheckout(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND external_invoice_id IS NULL", id).
		Update("checkout_claimed_at", nil).Error
}

func (r *Repo) SetChargeInvoice(ctx context.Context, id, invoiceID string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"charge_invoice_id": invoiceID, "payment_method": "credit_card", "updated_at": time.Now()}).Error
}

// SetError records the last payer-facing failure; nil clears it.
func (r *Repo) SetError(ctx context.Context, id string, msg *string) error {
	if msg != nil {
		t := truncate(*msg, 250)
		msg = &t
	}
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"error_message": msg, "updated_at": time.Now()}).Error
}

func (r *Repo) TenantCredential(ctx context.Context, tenantID string) (TenantGatewayCredential, error) {
	var c TenantGatewayCredential
	err := r.db.WithContext(ctx).First(&c, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TenantGatewayCredential{TenantID: tenantID}, nil
	}
	return c, err
}

func (r *Repo) Settings(ctx context.Context) (GatewaySettings, error) {
	var gs GatewaySettings
	err := r.db.WithContext(ctx).First(&gs, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GatewaySettings{ID: 1, SplitPercent: "0"}, nil
	}
	return gs, err
}

func (r *Repo) RecordEvent(ctx context.Context, ev *ProviderEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *Repo) FinishEvent(ctx context.Context, id string, processErr error) error {
	now := time.Now()
	updates := map[string]any{"processed_at": &now, "process_error": nil}
	if processErr != nil {
		msg := truncate(processErr.Error(), 250)
		updates["process_error"] = msg
	}
	return r.db.WithContext(ctx).Model(&ProviderEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repo) CreateRefund(ctx context.Context, ref *Refund) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *Repo) FinishRefund(ctx context.Context, id, status string, providerRef, errMsg *string) error {
	if errMsg != nil {
		t := truncate(*errMsg, 250)
		errMsg = &t
	}
	return r.db.WithContext(ctx).Model(&Refund{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"provider_ref":  providerRef,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		}).Error
}

// AutoMigrate creates or updates the tables owned by this package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Payment{}, &TenantGatewayCredential{}, &GatewaySettings{}, &ProviderEvent{}, &Refund{})
}

func setIf(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
