package clients

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
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

// Query narrows client listings. Search matches name, company and email
// case-insensitively.
type Query struct {
	Stage  client.Stage
	Search string
}

// Patch lists the user-editable fields of a client. Nil fields are kept.
type Patch struct {
	Name    *string   `json:"name"`
	Company *string   `json:"company"`
	Email   *string   `json:"email"`
	Phone   *string   `json:"phone"`
	Notes   *string   `json:"notes"`
	Tags    *[]string `json:"tags"`
}

// Service manages CRM clients.
type Service struct {
	store    storage.ClientStore
	syncer   *integration.Syncer
	notifier Notifier
	tracker  Tracker
	log      *logger.Logger
}

// New constructs a client service.
func New(store storage.ClientStore, syncer *integration.Syncer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("clients")
	}
	return &Service{store: store, syncer: syncer, log: log}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier, tracker Tracker) {
	s.notifier = notifier
	s.tracker = tracker
}

// Create validates and stores a new client. Aggregates start at zero.
func (s *Service) Create(ctx context.Context, c client.Client) (client.Client, error) {
	c.AgencyID = strings.TrimSpace(c.AgencyID)
	if c.AgencyID == "" {
		return client.Client{}, apperrors.InvalidInput("agency_id is required")
	}
	if c.Stage == "" {
		c.Stage = client.StageLead
	}
	c.Stage = client.NormalizeStage(string(c.Stage))
	if err := normalize(&c); err != nil {
		return client.Client{}, err
	}
	c.ApplyAggregates(client.Aggregates{})

	created, err := s.store.CreateClient(ctx, c)
	if err != nil {
		return client.Client{}, err
	}

	if s.tracker != nil {
		s.tracker.Track(ctx, created.AgencyID, onboarding.StepCreateClient)
	}
	s.notify(ctx, created, "New client", fmt.Sprintf("%s was added to the CRM", created.Name))
	s.log.WithField("agency_id", created.AgencyID).WithField("client_id", created.ID).Info("client created")
	return created, nil
}

// Get retrieves a client.
func (s *Service) Get(ctx context.Context, agencyID, id string) (client.Client, error) {
	c, err := s.store.GetClient(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return client.Client{}, apperrors.NotFound("client", id)
	}
	return c, err
}

// List returns the agency's clients ordered by name.
func (s *Service) List(ctx context.Context, agencyID string, q Query) ([]client.Client, error) {
	if q.Stage != "" {
		q.Stage = client.NormalizeStage(string(q.Stage))
		if !q.Stage.Valid() {
			return nil, apperrors.InvalidInput("invalid stage %q", q.Stage)
		}
	}
	var (
		all []client.Client
		err error
	)
	if term := strings.TrimSpace(q.Search); term != "" {
		all, err = s.store.SearchClients(ctx, agencyID, term)
	} else {
		all, err = s.store.ListClients(ctx, agencyID)
	}
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if q.Stage != "" && c.Stage != q.Stage {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Update applies a patch and propagates a rename to every linked record.
func (s *Service) Update(ctx context.Context, agencyID, id string, p Patch) (client.Client, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return client.Client{}, err
	}
	after := before
	after.Tags = append([]string(nil), before.Tags...)
	if p.Name != nil {
		after.Name = *p.Name
	}
	if p.Company != nil {
		after.Company = *p.Company
	}
	if p.Email != nil {
		after.Email = *p.Email
	}
	if p.Phone != nil {
		after.Phone = *p.Phone
	}
	if p.Notes != nil {
		after.Notes = *p.Notes
	}
	if p.Tags != nil {
		after.Tags = *p.Tags
	}
	if err := normalize(&after); err != nil {
		return client.Client{}, err
	}
	return s.save(ctx, before, after)
}

// SetStage moves a client through the pipeline.
func (s *Service) SetStage(ctx context.Context, agencyID, id string, stage client.Stage) (client.Client, error) {
	stage = client.NormalizeStage(string(stage))
	if !stage.Valid() {
		return client.Client{}, apperrors.InvalidInput("invalid stage %q", stage)
	}
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return client.Client{}, err
	}
	if before.Stage == stage {
		return before, nil
	}
	after := before
	after.Stage = stage
	updated, err := s.save(ctx, before, after)
	if err != nil {
		return client.Client{}, err
	}
	if stage == client.StageWon {
		s.notify(ctx, updated, "Deal won", fmt.Sprintf("%s moved to won", updated.Name))
	}
	s.log.WithField("agency_id", agencyID).WithField("client_id", id).WithField("stage", stage).Info("client stage changed")
	return updated, nil
}

func (s *Service) save(ctx context.Context, before, after client.Client) (client.Client, error) {
	// Aggregates belong to the sync layer; keep whatever is stored.
	after.ApplyAggregates(before.Aggregates())
	updated, err := s.store.UpdateClient(ctx, after)
	if err != nil {
		return client.Client{}, err
	}
	// Sync failures are logged and metered by the syncer; reconcile repairs them.
	_ = s.syncer.ClientChanged(ctx, before, updated)
	return updated, nil
}

// Delete removes a client, cascades its projects and decouples linked
// records.
func (s *Service) Delete(ctx context.Context, agencyID, id string) error {
	c, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteClient(ctx, agencyID, id); err != nil {
		return err
	}
	_ = s.syncer.ClientDeleted(ctx, c)
	s.log.WithField("agency_id", agencyID).WithField("client_id", id).Info("client deleted")
	return nil
}

func (s *Service) notify(ctx context.Context, c client.Client, title, body string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, notification.Notification{
		AgencyID:     c.AgencyID,
		Kind:         notification.KindClient,
		Title:        title,
		Body:         body,
		ResourceType: "client",
		ResourceID:   c.ID,
	}); err != nil {
		s.log.WithError(err).WithField("client_id", c.ID).Warn("notify client change")
	}
}

func normalize(c *client.Client) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Company = strings.TrimSpace(c.Company)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Notes = strings.TrimSpace(c.Notes)
	if c.Name == "" {
		return apperrors.InvalidInput("name is required")
	}
	if c.Email != "" {
		addr, err := mail.ParseAddress(c.Email)
		if err != nil || addr.Address != c.Email {
			return apperrors.InvalidInput("invalid email %q", c.Email)
		}
	}
	if !c.Stage.Valid() {
		return apperrors.InvalidInput("invalid stage %q", c.Stage)
	}
	c.Tags = normalizeTags(c.Tags)
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
