package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
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

func newService(t *testing.T) (*Service, *memory.Store, *recorder) {
	t.Helper()
	store := memory.New()
	syncer := integration.New(integration.StoresFrom(store), logger.NewNop())
	svc := New(store, syncer, logger.NewNop())
	rec := &recorder{}
	svc.AttachDependencies(rec, rec)
	return svc, store, rec
}

func TestCreateValidates(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, client.Client{AgencyID: "a1"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Create(ctx, client.Client{AgencyID: "a1", Name: "Acme", Email: "not-an-email"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Create(ctx, client.Client{AgencyID: "a1", Name: "Acme", Stage: "maybe"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	c, err := svc.Create(ctx, client.Client{
		AgencyID:     "a1",
		Name:         " Acme ",
		Email:        "Hello@Acme.io",
		Tags:         []string{"Retail", "retail", " "},
		ProjectCount: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, "hello@acme.io", c.Email)
	assert.Equal(t, client.StageLead, c.Stage)
	assert.Equal(t, []string{"retail"}, c.Tags)
	assert.Zero(t, c.ProjectCount, "aggregates are never user supplied")
	assert.Equal(t, []onboarding.Step{onboarding.StepCreateClient}, rec.steps)
	require.Len(t, rec.notes, 1)
}

func TestListFiltersAndSorts(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	for _, c := range []client.Client{
		{AgencyID: "a1", Name: "zeta", Company: "Z Corp"},
		{AgencyID: "a1", Name: "Alpha", Stage: client.StageWon},
		{AgencyID: "a1", Name: "beta", Email: "ops@zmail.io"},
		{AgencyID: "a2", Name: "other agency"},
	} {
		_, err := svc.Create(ctx, c)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "a1", Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alpha", "beta", "zeta"}, []string{all[0].Name, all[1].Name, all[2].Name})

	won, _ := svc.List(ctx, "a1", Query{Stage: "WON"})
	require.Len(t, won, 1)

	found, _ := svc.List(ctx, "a1", Query{Search: "Z"})
	assert.Len(t, found, 2)

	_, err = svc.List(ctx, "a1", Query{Stage: "nope"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestUpdateRenamePropagates(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	c, _ := svc.Create(ctx, client.Client{AgencyID: "a1", Name: "Old"})
	p, _ := store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: c.ID, ClientName: "Old", Name: "Site", Status: project.StatusPlanning, BudgetCents: 500})
	e, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Post", ClientID: c.ID, ClientName: "Old", Status: calendar.StatusScheduled})
	require.NoError(t, svc.syncer.RecomputeClient(ctx, "a1", c.ID))

	name := "New"
	tags := []string{"VIP"}
	updated, err := svc.Update(ctx, "a1", c.ID, Patch{Name: &name, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, 1, updated.ProjectCount, "update must keep aggregates")

	gotP, _ := store.GetProject(ctx, "a1", p.ID)
	gotE, _ := store.GetEvent(ctx, "a1", e.ID)
	assert.Equal(t, "New", gotP.ClientName)
	assert.Equal(t, "New", gotE.ClientName)

	_, err = svc.Update(ctx, "a1", "missing", Patch{Name: &name})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = svc.Update(ctx, "a2", c.ID, Patch{Name: &name})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestSetStageNotifiesWins(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	c, _ := svc.Create(ctx, client.Client{AgencyID: "a1", Name: "Acme"})
	rec.notes = nil

	updated, err := svc.SetStage(ctx, "a1", c.ID, "Proposal")
	require.NoError(t, err)
	assert.Equal(t, client.StageProposal, updated.Stage)
	assert.Empty(t, rec.notes)

	_, err = svc.SetStage(ctx, "a1", c.ID, client.StageWon)
	require.NoError(t, err)
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "Deal won", rec.notes[0].Title)

	_, err = svc.SetStage(ctx, "a1", c.ID, "bogus")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestDeleteCascades(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	c, _ := svc.Create(ctx, client.Client{AgencyID: "a1", Name: "Acme"})
	p, _ := store.CreateProject(ctx, project.Project{AgencyID: "a1", ClientID: c.ID, ClientName: "Acme", Name: "Site"})
	e, _ := store.CreateEvent(ctx, calendar.Event{AgencyID: "a1", Title: "Post", ClientID: c.ID, ClientName: "Acme", ProjectID: p.ID, ProjectName: "Site"})

	require.NoError(t, svc.Delete(ctx, "a1", c.ID))

	_, err := svc.Get(ctx, "a1", c.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = store.GetProject(ctx, "a1", p.ID)
	assert.Error(t, err)
	gotE, err := store.GetEvent(ctx, "a1", e.ID)
	require.NoError(t, err)
	assert.Empty(t, gotE.ClientID)
	assert.Empty(t, gotE.ProjectID)
	assert.Empty(t, gotE.ClientName)

	assert.True(t, apperrors.IsCode(svc.Delete(ctx, "a1", c.ID), apperrors.CodeNotFound))
}
