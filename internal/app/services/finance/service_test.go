package finance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

type recorder struct {
	notes []notification.Notification
	steps []onboarding.Step
}

func (r *recorder) Notify(_ context.Context, n notification.Notification) (notification.Notification, error) {
	r.notes = append(r.notes, n)
	return n, nil
}

func (r *recorder) Track(_ context.Context, _ string, step onboarding.Step) {
	r.steps = append(r.steps, step)
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	rec     *recorder
	client  client.Client
	project project.Project
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	syncer := integration.New(integration.StoresFrom(store), logger.NewNop())
	svc := New(store, syncer, logger.NewNop())
	f := &fixture{svc: svc, store: store, rec: &recorder{}, now: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	svc.AttachDependencies(f.rec, f.rec)

	c, err := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Acme"})
	require.NoError(t, err)
	p, err := store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: c.ID, ClientName: c.Name, Name: "Rebrand"})
	require.NoError(t, err)
	f.client, f.project = c, p
	return f
}

func TestRecordValidatesAndSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: "gift", Description: "x", AmountCents: 1})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, Description: "x", AmountCents: 0})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	tx, err := f.svc.Record(ctx, finance.Transaction{
		AgencyID:    "a1",
		Kind:        "Income",
		Description: "Deposit",
		Category:    " Retainer ",
		AmountCents: 50000,
		Status:      finance.StatusPaid,
		ProjectID:   f.project.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "retainer", tx.Category)
	require.NotNil(t, tx.PaidAt)
	assert.Equal(t, f.now, *tx.PaidAt)
	assert.Equal(t, "Acme", tx.ClientName)
	assert.Equal(t, "Rebrand", tx.ProjectName)
	assert.Equal(t, []onboarding.Step{onboarding.StepRecordTransaction}, f.rec.steps)

	c, _ := f.store.GetClient(ctx, "a1", f.client.ID)
	p, _ := f.store.GetProject(ctx, "a1", f.project.ID)
	assert.Equal(t, int64(50000), c.RevenueCents)
	assert.Equal(t, int64(50000), p.PaidCents)
}

func TestPayAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, Description: "Invoice 7", AmountCents: 12345, ClientID: f.client.ID})
	require.NoError(t, err)
	c, _ := f.store.GetClient(ctx, "a1", f.client.ID)
	assert.Equal(t, int64(12345), c.OutstandingCents)

	paid, err := f.svc.MarkPaid(ctx, "a1", invoice.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, finance.StatusPaid, paid.Status)
	require.Len(t, f.rec.notes, 1)
	assert.Contains(t, f.rec.notes[0].Body, "123.45")

	c, _ = f.store.GetClient(ctx, "a1", f.client.ID)
	assert.Zero(t, c.OutstandingCents)
	assert.Equal(t, int64(12345), c.RevenueCents)

	_, err = f.svc.Cancel(ctx, "a1", invoice.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	expense, _ := f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindExpense, Description: "Ads", AmountCents: 900})
	cancelled, err := f.svc.Cancel(ctx, "a1", expense.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, "a1", cancelled.ID, time.Time{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.now.AddDate(0, 0, -3)
	future := f.now.AddDate(0, 0, 3)

	late, _ := f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, Description: "Late", AmountCents: 100, DueDate: &past, ClientID: f.client.ID})
	_, _ = f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, Description: "On time", AmountCents: 100, DueDate: &future})
	_, _ = f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindExpense, Description: "Rent", AmountCents: 100, DueDate: &past})

	n, err := f.svc.MarkOverdue(ctx, "a1", f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.rec.notes, 1, "only income is worth an overdue notice")
	assert.Contains(t, f.rec.notes[0].Body, "Acme")

	got, _ := f.svc.Get(ctx, "a1", late.ID)
	assert.Equal(t, finance.StatusOverdue, got.Status)

	c, _ := f.store.GetClient(ctx, "a1", f.client.ID)
	assert.Equal(t, int64(100), c.OutstandingCents, "overdue income stays outstanding")

	n, _ = f.svc.MarkOverdue(ctx, "a1", f.now)
	assert.Zero(t, n)

	sum, err := f.svc.Summary(ctx, "a1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), sum.OverdueCents)
	assert.Equal(t, int64(200), sum.ReceivableCents)
}

func TestUpdateMovesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, _ := f.store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Globex"})

	tx, _ := f.svc.Record(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, Description: "Fee", AmountCents: 700, Status: finance.StatusPaid, ProjectID: f.project.ID})
	moved, err := f.svc.Update(ctx, "a1", tx.ID, Patch{ClientID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, "Globex", moved.ClientName)
	assert.Empty(t, moved.ProjectID)

	acme, _ := f.store.GetClient(ctx, "a1", f.client.ID)
	globex, _ := f.store.GetClient(ctx, "a1", other.ID)
	p, _ := f.store.GetProject(ctx, "a1", f.project.ID)
	assert.Zero(t, acme.RevenueCents)
	assert.Equal(t, int64(700), globex.RevenueCents)
	assert.Zero(t, p.PaidCents)

	require.NoError(t, f.svc.Delete(ctx, "a1", tx.ID))
	globex, _ = f.store.GetClient(ctx, "a1", other.ID)
	assert.Zero(t, globex.RevenueCents)
}
