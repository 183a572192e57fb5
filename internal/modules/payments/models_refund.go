package payments

import "time"

const (
	RefundInitiated = "initiated"
	RefundSucceeded = "succeeded"
	RefundFailed    = "failed"
)

// Refund records an admin refund request against the gateway.
type Refund struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	PaymentID string `gorm:"type:char(36);not null;index:ix_refunds_payment_id"`

	Provider    string  `gorm:"type:varchar(16);not null"`
	ProviderRef *string `gorm:"type:varchar(128)"`

	Status      string `gorm:"type:varchar(32);not null"`
	AmountCents int64  `gorm:"not null"`
	Currency    string `gorm:"type:char(3);not null"`

	ErrorMessage *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"precision:3;not null"`
	UpdatedAt time.Time `gorm:"precision:3;not null"`
}

func (Refund) TableName() string { return "refunds" }
