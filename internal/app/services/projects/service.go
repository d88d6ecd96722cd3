package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) (notification.Notification, error)
}

// Tracker records onboarding progress for the caller.
type Tracker interface {
	Track(ctx context.Context, agencyID string, step onboarding.Step)
}

// Patch lists the editable fields of a project. Nil fields are kept; the
// Clear flags drop a date.
type Patch struct {
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	BudgetCents    *int64     `json:"budget_cents"`
	Progress       *int       `json:"progress"`
	StartDate      *time.Time `json:"start_date"`
	DueDate        *time.Time `json:"due_date"`
	ClearStartDate bool       `json:"clear_start_date"`
	ClearDueDate   bool       `json:"clear_due_date"`
	ClientID       *string    `json:"client_id"`
}

// Service manages projects.
type Service struct {
	store    storage.ProjectStore
	syncer   *integration.Syncer
	notifier Notifier
	tracker  Tracker
	log      *logger.Logger
}

// New constructs a project service.
func New(store storage.ProjectStore, syncer *integration.Syncer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("projects")
	}
	return &Service{store: store, syncer: syncer, log: log}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier, tracker Tracker) {
	s.notifier = notifier
	s.tracker = tracker
}

// Create stores a project under an existing client and refreshes the
// client's totals.
func (s *Service) Create(ctx context.Context, p project.Project) (project.Project, error) {
	p.AgencyID = strings.TrimSpace(p.AgencyID)
	if p.AgencyID == "" {
		return project.Project{}, apperrors.InvalidInput("agency_id is required")
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return project.Project{}, apperrors.InvalidInput("client_id is required")
	}
	if p.Status == "" {
		p.Status = project.StatusPlanning
	}
	if err := normalize(&p); err != nil {
		return project.Project{}, err
	}
	link, err := s.syncer.Resolve(ctx, p.AgencyID, p.ClientID, "")
	if err != nil {
		return project.Project{}, err
	}
	p.ClientID, p.ClientName = link.ClientID, link.ClientName
	p.PaidCents, p.EventCount = 0, 0

	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return project.Project{}, err
	}
	// Sync failures are logged and metered by the syncer; reconcile repairs them.
	_ = s.syncer.ProjectCreated(ctx, created)

	if s.tracker != nil {
		s.tracker.Track(ctx, created.AgencyID, onboarding.StepCreateProject)
	}
	s.notify(ctx, created, "New project", fmt.Sprintf("%s started for %s", created.Name, created.ClientName))
	s.log.WithField("agency_id", created.AgencyID).
		WithField("project_id", created.ID).
		WithField("client_id", created.ClientID).
		Info("project created")
	return created, nil
}

// Get retrieves a project.
func (s *Service) Get(ctx context.Context, agencyID, id string) (project.Project, error) {
	p, err := s.store.GetProject(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return project.Project{}, apperrors.NotFound("project", id)
	}
	return p, err
}

// List returns the agency's projects, optionally only those of one client.
func (s *Service) List(ctx context.Context, agencyID, clientID string) ([]project.Project, error) {
	if clientID = strings.TrimSpace(clientID); clientID != "" {
		return s.store.ListProjectsByClient(ctx, agencyID, clientID)
	}
	return s.store.ListProjects(ctx, agencyID)
}

// Update applies a patch. Renames and client reassignment are propagated to
// linked records.
func (s *Service) Update(ctx context.Context, agencyID, id string, patch Patch) (project.Project, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return project.Project{}, err
	}
	after := before
	if patch.Name != nil {
		after.Name = *patch.Name
	}
	if patch.Description != nil {
		after.Description = *patch.Description
	}
	if patch.Status != nil {
		after.Status = project.Status(*patch.Status)
	}
	if patch.BudgetCents != nil {
		after.BudgetCents = *patch.BudgetCents
	}
	if patch.Progress != nil {
		after.Progress = *patch.Progress
	}
	switch {
	case patch.ClearStartDate:
		after.StartDate = nil
	case patch.StartDate != nil:
		t := patch.StartDate.UTC()
		after.StartDate = &t
	}
	switch {
	case patch.ClearDueDate:
		after.DueDate = nil
	case patch.DueDate != nil:
		t := patch.DueDate.UTC()
		after.DueDate = &t
	}
	if err := normalize(&after); err != nil {
		return project.Project{}, err
	}
	if after.Status == project.StatusCompleted && before.Status != project.StatusCompleted {
		after.Progress = 100
	}
	if patch.ClientID != nil && strings.TrimSpace(*patch.ClientID) != before.ClientID {
		if strings.TrimSpace(*patch.ClientID) == "" {
			return project.Project{}, apperrors.InvalidInput("client_id is required")
		}
		link, err := s.syncer.Resolve(ctx, agencyID, *patch.ClientID, "")
		if err != nil {
			return project.Project{}, err
		}
		after.ClientID, after.ClientName = link.ClientID, link.ClientName
	}

	updated, err := s.store.UpdateProject(ctx, after)
	if err != nil {
		return project.Project{}, err
	}
	_ = s.syncer.ProjectChanged(ctx, before, updated)

	if updated.Status == project.StatusCompleted && before.Status != project.StatusCompleted {
		s.notify(ctx, updated, "Project completed", fmt.Sprintf("%s for %s is complete", updated.Name, updated.ClientName))
	}
	s.log.WithField("agency_id", agencyID).WithField("project_id", id).Info("project updated")
	return updated, nil
}

// Delete removes a project and decouples linked records from it.
func (s *Service) Delete(ctx context.Context, agencyID, id string) error {
	p, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, agencyID, id); err != nil {
		return err
	}
	_ = s.syncer.ProjectDeleted(ctx, p)
	s.log.WithField("agency_id", agencyID).WithField("project_id", id).Info("project deleted")
	return nil
}

func (s *Service) notify(ctx context.Context, p project.Project, title, body string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, notification.Notification{
		AgencyID:     p.AgencyID,
		Kind:         notification.KindProject,
		Title:        title,
		Body:         body,
		ResourceType: "project",
		ResourceID:   p.ID,
	}); err != nil {
		s.log.WithError(err).WithField("project_id", p.ID).Warn("notify project change")
	}
}

func normalize(p *project.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Status = project.NormalizeStatus(string(p.Status))
	if p.Name == "" {
		return apperrors.InvalidInput("name is required")
	}
	if !p.Status.Valid() {
		return apperrors.InvalidInput("invalid status %q", p.Status)
	}
	if p.BudgetCents < 0 {
		return apperrors.InvalidInput("budget_cents must not be negative")
	}
	if p.Progress < 0 || p.Progress > 100 {
		return apperrors.InvalidInput("progress must be between 0 and 100")
	}
	if p.StartDate != nil && p.DueDate != nil && p.DueDate.Before(*p.StartDate) {
		return apperrors.InvalidInput("due_date must not be before start_date")
	}
	return nil
}
