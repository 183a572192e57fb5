package payments

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusDeclined   Status = "declined"
	StatusRefunded   Status = "refunded"
)

const (
	ProviderIugu  = "iugu"
	ProviderAsaas = "asaas"
)

type Payment struct {
	ID                string     `gorm:"type:char(36);primaryKey"`
	AppointmentID     string     `gorm:"type:char(36);not null;uniqueIndex:ux_payments_appointment_idem,priority:1"`
	TenantID          string     `gorm:"type:char(36);not null;index:ix_payments_tenant_id"`
	Provider          string     `gorm:"type:varchar(16);not null"`
	AmountCents       int64      `gorm:"not null"`
	Currency          string     `gorm:"type:char(3);not null"`
	Status            Status     `gorm:"type:varchar(16);not null"`
	ExternalInvoiceID *string    `gorm:"type:varchar(128);index:ix_payments_external_invoice_id"`
	ChargeInvoiceID   *string    `gorm:"type:varchar(128);index:ix_payments_charge_invoice_id"`
	PaymentMethod     *string    `gorm:"type:varchar(32)"`
	PixQRCode         *string    `gorm:"column:pix_qr_code;type:text"`
	PixQRCodeURL      *string    `gorm:"column:pix_qr_code_url;type:varchar(512)"`
	SecureURL         *string    `gorm:"type:varchar(512)"`
	PaidAt            *time.Time `gorm:"precision:3"`
	IdempotencyKey    string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_appointment_idem,priority:2"`
	PayerName         string     `gorm:"type:varchar(255)"`
	PayerEmail        string     `gorm:"type:varchar(255)"`
	PayerDocument     string     `gorm:"type:varchar(32)"`
	ErrorMessage      *string    `gorm:"type:varchar(255)"`
	CheckoutClaimedAt *time.Time `gorm:"precision:3"`
	CreatedAt         time.Time  `gorm:"precision:3;not null"`
	UpdatedAt         time.Time  `gorm:"precision:3;not null"`
}

func (Payment) TableName() string { return "payments" }

// InvoiceRef is the gateway invoice to act on: the card-only replacement
// when one was created, otherwise the original.
func (p Payment) InvoiceRef() string {
	if p.ChargeInvoiceID != nil && *p.ChargeInvoiceID != "" {
		return *p.ChargeInvoiceID
	}
	if p.ExternalInvoiceID != nil {
		return *p.ExternalInvoiceID
	}
	return ""
}

type TenantGatewayCredential struct {
	TenantID     string    `gorm:"type:char(36);primaryKey"`
	SubAccountID *string   `gorm:"type:varchar(128)"`
	APIToken     *string   `gorm:"type:varchar(255)"`
	UpdatedAt    time.Time `gorm:"precision:3;not null"`
}

func (TenantGatewayCredential) TableName() string { return "tenant_gateway_credentials" }

// GatewaySettings is a singleton row (id = 1).
type GatewaySettings struct {
	ID              int       `gorm:"primaryKey"`
	SplitPercent    string    `gorm:"type:varchar(16);not null;default:'0'"`
	MasterAccountID string    `gorm:"type:varchar(128)"`
	UpdatedAt       time.Time `gorm:"precision:3;not null"`
}

func (GatewaySettings) TableName() string { return "gateway_settings" }

type ProviderEvent struct {
	ID           string         `gorm:"type:char(36);primaryKey"`
	Provider     string         `gorm:"type:varchar(16);not null;index:ix_provider_events_provider_ext,priority:1"`
	EventType    string         `gorm:"type:varchar(64);not null"`
	ExternalID   string         `gorm:"type:varchar(128);index:ix_provider_events_provider_ext,priority:2"`
	PayloadJSON  datatypes.JSON `gorm:"type:json;not null"`
	ReceivedAt   time.Time      `gorm:"precision:3;not null"`
	ProcessedAt  *time.Time     `gorm:"precision:3"`
	ProcessError *string        `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }
