package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/jobs"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func TestNewWiresLifecycle(t *testing.T) {
	application, err := New(Stores{}, Options{Jobs: &jobs.Config{ReconcileSchedule: "@every 1h"}}, logger.NewNop())
	require.NoError(t, err)

	var names []string
	for _, svc := range application.Services() {
		names = append(names, svc.Name())
	}
	assert.Contains(t, names, "clients")
	assert.Contains(t, names, "jobs")
	assert.NotContains(t, names, "sync-watcher")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Start(ctx))
	require.NoError(t, application.Stop(ctx))
}

func TestSyncInvalidatesDashboard(t *testing.T) {
	application, err := New(Stores{}, Options{DashboardTTL: time.Hour}, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	agency, err := application.Agencies.Create(ctx, "Studio", actor.Actor{UserID: "u1"})
	require.NoError(t, err)
	c, err := application.Clients.Create(ctx, client.Client{AgencyID: agency.ID, Name: "Acme"})
	require.NoError(t, err)

	before, err := application.Dashboard.Summary(ctx, agency.ID)
	require.NoError(t, err)

	_, err = application.Projects.Create(ctx, project.Project{AgencyID: agency.ID, ClientID: c.ID, Name: "Site", BudgetCents: 1000})
	require.NoError(t, err)

	after, err := application.Dashboard.Summary(ctx, agency.ID)
	require.NoError(t, err)
	assert.Zero(t, before.Projects)
	assert.Equal(t, 1, after.Projects)

	jobsOff, err := New(Stores{}, Options{}, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, jobsOff.Jobs)
}
