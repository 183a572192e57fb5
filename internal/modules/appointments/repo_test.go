package appointments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "appointments.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestMarkCompleted_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&Appointment{ID: "A1", TenantID: "T1", PriceCents: 15000, Status: StatusScheduled, UpdatedAt: time.Now()}).Error)

	repo := NewRepo(db)
	ctx := context.Background()

	changed, err := repo.MarkCompleted(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkCompleted(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, changed)

	a, err := repo.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.NotNil(t, a.CompletedAt)
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
