package portal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	calendarsvc "github.com/R3E-Network/agency_layer/internal/app/services/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func TestViewIsScopedToClient(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	syncer := integration.New(integration.StoresFrom(store), logger.NewNop())
	svc := New(Stores{store, store, store, store, store}, calendarsvc.New(store, syncer, logger.NewNop()), logger.NewNop())
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mine, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Acme", Notes: "pays late"})
	theirs, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Globex"})

	_, _ = store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: mine.ID, Name: "Site"})
	_, _ = store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: theirs.ID, Name: "Other"})

	pending, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", ClientID: mine.ID, Title: "Launch", Status: calendar.StatusScheduled, ScheduledAt: now.Add(time.Hour)})
	_, _ = store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", ClientID: mine.ID, Title: "Idea", Status: calendar.StatusDraft, ScheduledAt: now.Add(time.Hour)})
	foreign, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", ClientID: theirs.ID, Title: "Secret", Status: calendar.StatusScheduled, ScheduledAt: now.Add(time.Hour)})

	_, _ = store.CreatePortfolioItem(ctx, portfolio.Item{AgencyID: "a1", ClientID: mine.ID, Title: "Live", Published: true})
	_, _ = store.CreatePortfolioItem(ctx, portfolio.Item{AgencyID: "a1", ClientID: mine.ID, Title: "Hidden"})

	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", ClientID: mine.ID, Kind: finance.KindIncome, AmountCents: 250, Status: finance.StatusPending})
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", ClientID: mine.ID, Kind: finance.KindIncome, AmountCents: 900, Status: finance.StatusPaid})
	_, _ = store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", ClientID: mine.ID, Kind: finance.KindExpense, AmountCents: 70, Status: finance.StatusPending})

	v, err := svc.View(ctx, "a1", mine.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Client.Notes)
	assert.Len(t, v.Projects, 1)
	require.Len(t, v.Upcoming, 1)
	assert.Equal(t, 1, v.AwaitingApproval)
	require.Len(t, v.Portfolio, 1)
	assert.Equal(t, "Live", v.Portfolio[0].Title)
	require.Len(t, v.Invoices, 1)
	assert.Equal(t, int64(250), v.OutstandingCents)

	_, err = svc.View(ctx, "a1", "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	_, err = svc.View(ctx, "a2", mine.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = svc.ApproveEvent(ctx, "a1", mine.ID, foreign.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	approved, err := svc.ApproveEvent(ctx, "a1", mine.ID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusApproved, approved.Status)
}
