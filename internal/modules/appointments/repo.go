// Package appointments maps the slice of the appointments table the payment
// flow reads and completes.
package appointments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

var ErrNotFound = errors.New("appointment not found")

type Appointment struct {
	ID          string     `gorm:"type:char(36);primaryKey"`
	TenantID    string     `gorm:"type:char(36);not null;index:ix_appointments_tenant_id"`
	PriceCents  int64      `gorm:"not null"`
	Description string     `gorm:"type:varchar(255)"`
	Status      string     `gorm:"type:varchar(32);not null"`
	CompletedAt *time.Time `gorm:"precision:3"`
	UpdatedAt   time.Time  `gorm:"precision:3;not null"`
}

func (Appointment) TableName() string { return "appointments" }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id string) (Appointment, error) {
	var a Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	return a, nil
}

// MarkCompleted completes the appointment unless it already is. It reports
// whether this call changed the row.
func (r *Repo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Appointment{}).
		Where("id = ? AND status <> ?", id, StatusCompleted).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"completed_at": &now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Appointment{})
}
