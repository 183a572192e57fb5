package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/appointments"
)

func TestApply_ApprovedRunsSideEffectsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 15000)
	seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 15000})

	p, err := h.repo.GetPayment(ctx, "P1")
	require.NoError(t, err)
	tr, err := h.reconciler.Apply(ctx, &p, StatusApproved, nil)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Equal(t, StatusPending, tr.From)
	assert.Equal(t, StatusApproved, p.Status)
	require.NotNil(t, p.PaidAt)

	// second delivery of the same status
	p2, err := h.repo.GetPayment(ctx, "P1")
	require.NoError(t, err)
	tr, err = h.reconciler.Apply(ctx, &p2, StatusApproved, nil)
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	assert.Equal(t, 1, h.fulfiller.calls)
	assert.Equal(t, []string{"P1"}, h.notifier.approved)

	appt, err := h.appts.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusCompleted, appt.Status)
	require.NotNil(t, appt.CompletedAt)
}

func TestApply_KeepsGatewayPaidAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 100)
	p := seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100})

	paid := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	_, err := h.reconciler.Apply(ctx, &p, StatusApproved, &paid)
	require.NoError(t, err)

	got, err := h.repo.GetPayment(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paid.Equal(*got.PaidAt))
}

func TestApply_DisallowedTransitionsAreIgnored(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{from: StatusApproved, to: StatusPending},
		{from: StatusApproved, to: StatusDeclined},
		{from: StatusDeclined, to: StatusApproved},
		{from: StatusRefunded, to: StatusApproved},
		{from: StatusPending, to: StatusRefunded},
		{from: StatusProcessing, to: StatusPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			seedAppointment(t, h.db, "A1", "T1", 100)
			p := seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100, Status: tt.from})

			tr, err := h.reconciler.Apply(ctx, &p, tt.to, nil)
			require.NoError(t, err)
			assert.False(t, tr.Changed)

			got, err := h.repo.GetPayment(ctx, "P1")
			require.NoError(t, err)
			assert.Equal(t, tt.from, got.Status)
			assert.Zero(t, h.fulfiller.calls)
			assert.Empty(t, h.notifier.approved)
			assert.Empty(t, h.notifier.declined)
		})
	}
}

func TestApply_StaleSnapshotLosesTheSwap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 100)
	seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100})

	first, err := h.repo.GetPayment(ctx, "P1")
	require.NoError(t, err)
	second := first

	tr1, err := h.reconciler.Apply(ctx, &first, StatusApproved, nil)
	require.NoError(t, err)
	tr2, err := h.reconciler.Apply(ctx, &second, StatusApproved, nil)
	require.NoError(t, err)

	assert.True(t, tr1.Changed)
	assert.False(t, tr2.Changed)
	assert.Equal(t, StatusPending, second.Status)
	assert.Equal(t, 1, h.fulfiller.calls)
	assert.Len(t, h.notifier.approved, 1)
}

func TestApply_ConcurrentApprovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 100)
	seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := h.repo.GetPayment(ctx, "P1")
			if !assert.NoError(t, err) {
				return
			}
			tr, _ := h.reconciler.Apply(ctx, &p, StatusApproved, nil)
			if tr.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changed)
	assert.Len(t, h.notifier.approved, 1)
	assert.Equal(t, 1, h.fulfiller.calls)
}

func TestApply_DeclinedNotifiesWithoutFulfilment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 100)
	p := seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100, Status: StatusProcessing})

	tr, err := h.reconciler.Apply(ctx, &p, StatusDeclined, nil)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, []string{"P1"}, h.notifier.declined)
	assert.Zero(t, h.fulfiller.calls)

	appt, err := h.appts.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusScheduled, appt.Status)
}

type failingNotifier struct{ recordingNotifier }

func (f *failingNotifier) PaymentApproved(context.Context, Payment) error {
	return errors.New("broker unavailable")
}

func TestApply_SideEffectFailureKeepsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedAppointment(t, h.db, "A1", "T1", 100)
	p := seedPayment(t, h.db, Payment{ID: "P1", AppointmentID: "A1", TenantID: "T1", AmountCents: 100})

	r := NewReconciler(h.repo, h.fulfiller, &failingNotifier{})
	tr, err := r.Apply(ctx, &p, StatusApproved, nil)
	assert.Error(t, err)
	assert.True(t, tr.Changed)

	got, err := h.repo.GetPayment(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, 1, h.fulfiller.calls)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusApproved))
	assert.True(t, CanTransition(StatusProcessing, StatusDeclined))
	assert.True(t, CanTransition(StatusApproved, StatusRefunded))
	assert.False(t, CanTransition(StatusDeclined, StatusPending))
	assert.False(t, CanTransition(StatusRefunded, StatusApproved))
	assert.True(t, StatusDeclined.Terminal())
	assert.False(t, StatusApproved.Terminal())
}
