package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const maxMediaURLs = 10

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) (notification.Notification, error)
}

// Tracker records onboarding progress for the caller.
type Tracker interface {
	Track(ctx context.Context, agencyID string, step onboarding.Step)
}

// Patch lists the editable fields of a post. Nil fields are kept.
type Patch struct {
	Title       *string    `json:"title"`
	Caption     *string    `json:"caption"`
	Platform    *string    `json:"platform"`
	Status      *string    `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	ClientID    *string    `json:"client_id"`
	ProjectID   *string    `json:"project_id"`
	MediaURLs   *[]string  `json:"media_urls"`
}

// Service manages the content calendar.
type Service struct {
	store    storage.EventStore
	syncer   *integration.Syncer
	notifier Notifier
	tracker  Tracker
	log      *logger.Logger
}

// New constructs a calendar service.
func New(store storage.EventStore, syncer *integration.Syncer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("calendar")
	}
	return &Service{store: store, syncer: syncer, log: log}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier, tracker Tracker) {
	s.notifier = notifier
	s.tracker = tracker
}

// Create schedules a post. Client and project references are validated and
// their names copied onto the post.
func (s *Service) Create(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	e.AgencyID = strings.TrimSpace(e.AgencyID)
	if e.AgencyID == "" {
		return calendar.Event{}, apperrors.InvalidInput("agency_id is required")
	}
	if e.Status == "" {
		e.Status = calendar.StatusDraft
	}
	if e.Platform == "" {
		e.Platform = calendar.PlatformOther
	}
	if err := normalize(&e); err != nil {
		return calendar.Event{}, err
	}
	if err := s.link(ctx, &e, e.ClientID, e.ProjectID); err != nil {
		return calendar.Event{}, err
	}
	e.ReminderSentAt = nil

	created, err := s.store.CreateEvent(ctx, e)
	if err != nil {
		return calendar.Event{}, err
	}
	// Sync failures are logged and metered by the syncer; reconcile repairs them.
	_ = s.syncer.EventChanged(ctx, nil, &created)

	if s.tracker != nil {
		s.tracker.Track(ctx, created.AgencyID, onboarding.StepSchedulePost)
	}
	s.log.WithField("agency_id", created.AgencyID).
		WithField("event_id", created.ID).
		WithField("platform", created.Platform).
		Info("post scheduled")
	return created, nil
}

// Schedule is an alias of Create kept for the calendar vocabulary.
func (s *Service) Schedule(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	return s.Create(ctx, e)
}

// Get retrieves a post.
func (s *Service) Get(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	e, err := s.store.GetEvent(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return calendar.Event{}, apperrors.NotFound("event", id)
	}
	return e, err
}

// List returns posts matching filter ordered by schedule time.
func (s *Service) List(ctx context.Context, agencyID string, filter calendar.Filter) ([]calendar.Event, error) {
	if filter.Status != "" {
		filter.Status = calendar.NormalizeStatus(string(filter.Status))
		if !filter.Status.Valid() {
			return nil, apperrors.InvalidInput("invalid status %q", filter.Status)
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, apperrors.InvalidInput("to must be after from")
	}
	return s.store.ListEvents(ctx, agencyID, filter)
}

// Update applies a patch. Moving a post in time re-arms its reminder. A
// patch may only move a post between draft and scheduled; approval,
// publishing and cancelling go through their own actions.
func (s *Service) Update(ctx context.Context, agencyID, id string, patch Patch) (calendar.Event, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return calendar.Event{}, err
	}
	after := before
	after.MediaURLs = append([]string(nil), before.MediaURLs...)
	if patch.Title != nil {
		after.Title = *patch.Title
	}
	if patch.Caption != nil {
		after.Caption = *patch.Caption
	}
	if patch.Platform != nil {
		after.Platform = calendar.Platform(*patch.Platform)
	}
	if patch.Status != nil {
		to := calendar.NormalizeStatus(*patch.Status)
		if to != before.Status {
			if !editable(before.Status) {
				return calendar.Event{}, apperrors.Conflict("cannot move post from %s to %s", before.Status, to)
			}
			if !editable(to) {
				return calendar.Event{}, apperrors.InvalidInput("status %q cannot be set directly", to)
			}
		}
		after.Status = to
	}
	if patch.ScheduledAt != nil {
		after.ScheduledAt = *patch.ScheduledAt
	}
	if patch.MediaURLs != nil {
		after.MediaURLs = *patch.MediaURLs
	}
	if err := normalize(&after); err != nil {
		return calendar.Event{}, err
	}
	if !after.ScheduledAt.Equal(before.ScheduledAt) {
		after.ReminderSentAt = nil
	}
	if patch.ClientID != nil || patch.ProjectID != nil {
		clientID, projectID := before.ClientID, before.ProjectID
		if patch.ClientID != nil {
			clientID = *patch.ClientID
			if patch.ProjectID == nil && clientID != before.ClientID {
				projectID = ""
			}
		}
		if patch.ProjectID != nil {
			projectID = *patch.ProjectID
		}
		if err := s.link(ctx, &after, clientID, projectID); err != nil {
			return calendar.Event{}, err
		}
	}
	return s.save(ctx, before, after)
}

// Approve records the client's sign-off on a scheduled post.
func (s *Service) Approve(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	e, err := s.transition(ctx, agencyID, id, calendar.StatusApproved)
	if err != nil {
		return calendar.Event{}, err
	}
	s.notify(ctx, e, "Post approved", fmt.Sprintf("%q was approved for %s", e.Title, e.Platform))
	return e, nil
}

// Publish marks a post as published.
func (s *Service) Publish(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	return s.transition(ctx, agencyID, id, calendar.StatusPublished)
}

// Cancel withdraws a post that was not published yet.
func (s *Service) Cancel(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	return s.transition(ctx, agencyID, id, calendar.StatusCancelled)
}

// editable reports whether a post's status may be changed by a plain edit.
func editable(status calendar.Status) bool {
	return status == calendar.StatusDraft || status == calendar.StatusScheduled
}

// allowed lists the states a post may move to by explicit action.
var allowed = map[calendar.Status][]calendar.Status{
	calendar.StatusApproved:  {calendar.StatusScheduled},
	calendar.StatusPublished: {calendar.StatusDraft, calendar.StatusScheduled, calendar.StatusApproved},
	calendar.StatusCancelled: {calendar.StatusDraft, calendar.StatusScheduled, calendar.StatusApproved},
}

func (s *Service) transition(ctx context.Context, agencyID, id string, to calendar.Status) (calendar.Event, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return calendar.Event{}, err
	}
	if before.Status == to {
		return before, nil
	}
	ok := false
	for _, from := range allowed[to] {
		if before.Status == from {
			ok = true
			break
		}
	}
	if !ok {
		return calendar.Event{}, apperrors.Conflict("cannot move post from %s to %s", before.Status, to)
	}
	after := before
	after.Status = to
	updated, err := s.save(ctx, before, after)
	if err != nil {
		return calendar.Event{}, err
	}
	s.log.WithField("agency_id", agencyID).WithField("event_id", id).WithField("status", to).Info("post status changed")
	return updated, nil
}

func (s *Service) save(ctx context.Context, before, after calendar.Event) (calendar.Event, error) {
	updated, err := s.store.UpdateEvent(ctx, after)
	if err != nil {
		return calendar.Event{}, err
	}
	_ = s.syncer.EventChanged(ctx, &before, &updated)
	return updated, nil
}

// Delete removes a post and refreshes the counters it contributed to.
func (s *Service) Delete(ctx context.Context, agencyID, id string) error {
	e, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, agencyID, id); err != nil {
		return err
	}
	_ = s.syncer.EventChanged(ctx, &e, nil)
	s.log.WithField("agency_id", agencyID).WithField("event_id", id).Info("post deleted")
	return nil
}

// DueReminders notifies staff once about every pending post scheduled in
// [now, now+window). It returns the number of reminders sent.
func (s *Service) DueReminders(ctx context.Context, agencyID string, now time.Time, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, apperrors.InvalidInput("window must be positive")
	}
	events, err := s.store.ListEvents(ctx, agencyID, calendar.Filter{From: now, To: now.Add(window)})
	if err != nil {
		return 0, err
	}
	var (
		sent int
		errs []error
	)
	for _, e := range events {
		if !e.Status.Pending() || e.ReminderSentAt != nil {
			continue
		}
		at := now
		e.ReminderSentAt = &at
		if _, err := s.store.UpdateEvent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.ID, err))
			continue
		}
		s.notify(ctx, e, "Post due soon", fmt.Sprintf("%q goes out on %s at %s", e.Title, e.Platform, e.ScheduledAt.UTC().Format(time.RFC3339)))
		sent++
	}
	if sent > 0 {
		s.log.WithField("agency_id", agencyID).WithField("count", sent).Info("post reminders sent")
	}
	return sent, errors.Join(errs...)
}

func (s *Service) link(ctx context.Context, e *calendar.Event, clientID, projectID string) error {
	link, err := s.syncer.Resolve(ctx, e.AgencyID, clientID, projectID)
	if err != nil {
		return err
	}
	e.ClientID, e.ClientName = link.ClientID, link.ClientName
	e.ProjectID, e.ProjectName = link.ProjectID, link.ProjectName
	return nil
}

func (s *Service) notify(ctx context.Context, e calendar.Event, title, body string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, notification.Notification{
		AgencyID:     e.AgencyID,
		Kind:         notification.KindCalendar,
		Title:        title,
		Body:         body,
		ResourceType: "event",
		ResourceID:   e.ID,
	}); err != nil {
		s.log.WithError(err).WithField("event_id", e.ID).Warn("notify calendar change")
	}
}

func normalize(e *calendar.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	e.Caption = strings.TrimSpace(e.Caption)
	e.Platform = calendar.NormalizePlatform(string(e.Platform))
	e.Status = calendar.NormalizeStatus(string(e.Status))
	if e.Title == "" {
		return apperrors.InvalidInput("title is required")
	}
	if !e.Platform.Valid() {
		return apperrors.InvalidInput("invalid platform %q", e.Platform)
	}
	if !e.Status.Valid() {
		return apperrors.InvalidInput("invalid status %q", e.Status)
	}
	if e.ScheduledAt.IsZero() {
		return apperrors.InvalidInput("scheduled_at is required")
	}
	e.ScheduledAt = e.ScheduledAt.UTC()

	urls := make([]string, 0, len(e.MediaURLs))
	for _, u := range e.MediaURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) > maxMediaURLs {
		return apperrors.InvalidInput("at most %d media urls per post", maxMediaURLs)
	}
	e.MediaURLs = urls
	return nil
}
