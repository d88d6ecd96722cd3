package onboarding

import (
	"context"
	"strings"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// View is a progress record with its computed completion share.
type View struct {
	onboarding.Progress
	Percent int      `json:"percent"`
	Steps   []string `json:"steps"`
}

func viewOf(p onboarding.Progress) View {
	steps := make([]string, len(onboarding.Steps))
	for i, s := range onboarding.Steps {
		steps[i] = string(s)
	}
	if p.CompletedSteps == nil {
		p.CompletedSteps = []string{}
	}
	return View{Progress: p, Percent: p.Percent(), Steps: steps}
}

// Service tracks the per-user tutorial checklist.
type Service struct {
	store storage.OnboardingStore
	log   *logger.Logger
}

// New constructs an onboarding service.
func New(store storage.OnboardingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("onboarding")
	}
	return &Service{store: store, log: log}
}

// Get returns the user's checklist. Users without saved progress start empty.
func (s *Service) Get(ctx context.Context, agencyID, userID string) (View, error) {
	p, err := s.store.GetProgress(ctx, agencyID, userID)
	if err != nil {
		return View{}, err
	}
	return viewOf(p), nil
}

// Complete marks step done. Completing a step twice is a no-op.
func (s *Service) Complete(ctx context.Context, agencyID, userID string, step onboarding.Step) (View, error) {
	step = onboarding.Step(strings.ToLower(strings.TrimSpace(string(step))))
	if !step.Valid() {
		return View{}, apperrors.InvalidInput("unknown onboarding step %q", step)
	}
	if strings.TrimSpace(userID) == "" {
		return View{}, apperrors.InvalidInput("user_id is required")
	}
	p, err := s.store.GetProgress(ctx, agencyID, userID)
	if err != nil {
		return View{}, err
	}
	if !p.Complete(step) {
		return viewOf(p), nil
	}
	p.AgencyID, p.UserID = agencyID, userID
	saved, err := s.store.SaveProgress(ctx, p)
	if err != nil {
		return View{}, err
	}
	s.log.WithField("agency_id", agencyID).
		WithField("user_id", userID).
		WithField("step", step).
		Info("onboarding step completed")
	return viewOf(saved), nil
}

// Dismiss hides the checklist for the user.
func (s *Service) Dismiss(ctx context.Context, agencyID, userID string) (View, error) {
	p, err := s.store.GetProgress(ctx, agencyID, userID)
	if err != nil {
		return View{}, err
	}
	if p.Dismissed {
		return viewOf(p), nil
	}
	p.AgencyID, p.UserID, p.Dismissed = agencyID, userID, true
	saved, err := s.store.SaveProgress(ctx, p)
	if err != nil {
		return View{}, err
	}
	return viewOf(saved), nil
}

// Reset clears every completed step and shows the checklist again.
func (s *Service) Reset(ctx context.Context, agencyID, userID string) (View, error) {
	saved, err := s.store.SaveProgress(ctx, onboarding.Progress{AgencyID: agencyID, UserID: userID})
	if err != nil {
		return View{}, err
	}
	return viewOf(saved), nil
}

// Track completes step for the caller found in ctx. Failures are logged
// and never surface to the operation that triggered them.
func (s *Service) Track(ctx context.Context, agencyID string, step onboarding.Step) {
	userID := actor.UserID(ctx)
	if userID == "" {
		return
	}
	if _, err := s.Complete(ctx, agencyID, userID, step); err != nil {
		s.log.WithError(err).WithField("step", step).Warn("track onboarding step")
	}
}
