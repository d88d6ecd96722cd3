package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	"github.com/R3E-Network/agency_layer/internal/cache"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func TestSummaryFigures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	svc := New(Stores{store, store, store, store}, nil, 0, logger.NewNop())
	svc.now = func() time.Time { return now }

	lead, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Lead", Stage: client.StageLead, TotalBudgetCents: 1000})
	_, _ = store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Won", Stage: client.StageWon, TotalBudgetCents: 5000})
	past := now.AddDate(0, 0, -1)
	_, _ = store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: lead.ID, Name: "Late", Status: project.StatusInProgress, DueDate: &past})
	_, _ = store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: lead.ID, Name: "Done", Status: project.StatusCompleted})

	paidAt := now.AddDate(0, 0, -2)
	lastMonth := now.AddDate(0, -1, 0)
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, AmountCents: 300, Status: finance.StatusPaid, PaidAt: &paidAt})
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, AmountCents: 999, Status: finance.StatusPaid, PaidAt: &lastMonth})
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindExpense, AmountCents: 100, Status: finance.StatusPaid, PaidAt: &paidAt})
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, AmountCents: 50, Status: finance.StatusOverdue})

	_, _ = store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Soon", Status: calendar.StatusScheduled, ScheduledAt: now.Add(time.Hour)})
	_, _ = store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Draft", Status: calendar.StatusDraft, ScheduledAt: now.Add(time.Hour)})
	_, _ = store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Far", Status: calendar.StatusApproved, ScheduledAt: now.AddDate(0, 0, 10)})

	sum, err := svc.Summary(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Clients)
	assert.Equal(t, 1, sum.ClientsByStage["lead"])
	assert.Equal(t, 0, sum.ClientsByStage["proposal"])
	assert.Equal(t, int64(1000), sum.PipelineValueCents, "won deals are out of the pipeline")
	assert.Equal(t, 1, sum.ActiveProjects)
	assert.Equal(t, 1, sum.OverdueProjects)
	assert.Equal(t, int64(300), sum.MonthRevenueCents)
	assert.Equal(t, int64(100), sum.MonthExpenseCents)
	assert.Equal(t, int64(50), sum.OverdueCents)
	assert.Equal(t, 1, sum.UpcomingPosts)
	require.Len(t, sum.Upcoming, 1)
	assert.Equal(t, "Soon", sum.Upcoming[0].Title)
}

func TestSummaryCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mem := cache.NewMemory()
	svc := New(Stores{store, store, store, store}, mem, time.Hour, logger.NewNop())
	syncer := integration.New(integration.StoresFrom(store), logger.NewNop())
	syncer.OnChange(svc.Invalidate)

	c, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Acme", Stage: client.StageLead})
	first, err := svc.Summary(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Clients)
	assert.Equal(t, 1, mem.Len())

	_, _ = store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Globex"})
	cached, _ := svc.Summary(ctx, "a1")
	assert.Equal(t, 1, cached.Clients, "second read is served from cache")

	p, _ := store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: c.ID, Name: "Site", Status: project.StatusPlanning, BudgetCents: 400})
	require.NoError(t, syncer.ProjectCreated(ctx, p))
	assert.Equal(t, 0, mem.Len(), "sync listener drops the cached summary")

	fresh, _ := svc.Summary(ctx, "a1")
	assert.Equal(t, 2, fresh.Clients)
	assert.Equal(t, int64(400), fresh.PipelineValueCents)
}
