package projects

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
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func setup(t *testing.T) (*Service, *memory.Store, client.Client) {
	t.Helper()
	store := memory.New()
	syncer := integration.New(integration.StoresFrom(store), logger.NewNop())
	c, err := store.CreateClient(context.Background(), client.Client{AgencyID: "a1", Name: "Acme", Stage: client.StageWon})
	require.NoError(t, err)
	return New(store, syncer, logger.NewNop()), store, c
}

func strPtr(s string) *string { return &s }

func TestCreateResolvesClient(t *testing.T) {
	svc, store, c := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: "ghost"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: c.ID, Progress: 120})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	due := start.AddDate(0, 0, -1)
	_, err = svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: c.ID, StartDate: &start, DueDate: &due})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	p, err := svc.Create(ctx, project.Project{AgencyID: "a1", Name: " Site ", ClientID: c.ID, BudgetCents: 90000, Status: "In Progress", PaidCents: 7})
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.ClientName)
	assert.Equal(t, project.StatusInProgress, p.Status)
	assert.Zero(t, p.PaidCents)

	got, _ := store.GetClient(ctx, "a1", c.ID)
	assert.Equal(t, 1, got.ProjectCount)
	assert.Equal(t, 1, got.ActiveProjects)
	assert.Equal(t, int64(90000), got.TotalBudgetCents)
}

func TestUpdateReassignsClient(t *testing.T) {
	svc, store, c := setup(t)
	ctx := context.Background()
	other, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Globex"})

	p, err := svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: c.ID, BudgetCents: 100})
	require.NoError(t, err)
	e, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Teaser", ClientID: c.ID, ClientName: "Acme", ProjectID: p.ID, ProjectName: "Site", Status: calendar.StatusScheduled})
	tx, _ := store.CreateTransaction(ctx, finance.Transaction{AgencyID: "a1", Kind: finance.KindIncome, AmountCents: 40, Status: finance.StatusPaid, ClientID: c.ID, ProjectID: p.ID})

	updated, err := svc.Update(ctx, "a1", p.ID, Patch{Name: strPtr("Website"), ClientID: strPtr(other.ID)})
	require.NoError(t, err)
	assert.Equal(t, "Globex", updated.ClientName)

	gotE, _ := store.GetEvent(ctx, "a1", e.ID)
	assert.Equal(t, other.ID, gotE.ClientID)
	assert.Equal(t, "Globex", gotE.ClientName)
	assert.Equal(t, "Website", gotE.ProjectName)
	gotTx, _ := store.GetTransaction(ctx, "a1", tx.ID)
	assert.Equal(t, other.ID, gotTx.ClientID)

	oldClient, _ := store.GetClient(ctx, "a1", c.ID)
	newClient, _ := store.GetClient(ctx, "a1", other.ID)
	assert.Zero(t, oldClient.ProjectCount)
	assert.Equal(t, 1, newClient.ProjectCount)
	assert.Equal(t, int64(40), newClient.RevenueCents)

	_, err = svc.Update(ctx, "a1", p.ID, Patch{ClientID: strPtr("")})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestCompletingSetsProgress(t *testing.T) {
	svc, store, c := setup(t)
	ctx := context.Background()
	p, _ := svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: c.ID, Progress: 40})

	updated, err := svc.Update(ctx, "a1", p.ID, Patch{Status: strPtr("completed")})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)

	got, _ := store.GetClient(ctx, "a1", c.ID)
	assert.Zero(t, got.ActiveProjects)

	_, err = svc.Update(ctx, "a1", p.ID, Patch{Status: strPtr("paused")})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestDeleteDecouples(t *testing.T) {
	svc, store, c := setup(t)
	ctx := context.Background()
	p, _ := svc.Create(ctx, project.Project{AgencyID: "a1", Name: "Site", ClientID: c.ID})
	e, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Teaser", ClientID: c.ID, ClientName: "Acme", ProjectID: p.ID, ProjectName: "Site"})

	require.NoError(t, svc.Delete(ctx, "a1", p.ID))

	gotE, _ := store.GetEvent(ctx, "a1", e.ID)
	assert.Empty(t, gotE.ProjectID)
	assert.Empty(t, gotE.ProjectName)
	assert.Equal(t, c.ID, gotE.ClientID)

	got, _ := store.GetClient(ctx, "a1", c.ID)
	assert.Zero(t, got.ProjectCount)

	list, err := svc.List(ctx, "a1", c.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, apperrors.IsCode(svc.Delete(ctx, "a1", p.ID), apperrors.CodeNotFound))
}
