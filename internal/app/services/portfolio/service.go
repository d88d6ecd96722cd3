package portfolio

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// MaxImageBytes bounds a single portfolio image upload.
const MaxImageBytes = 10 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Tracker records onboarding progress for the caller.
type Tracker interface {
	Track(ctx context.Context, agencyID string, step onboarding.Step)
}

// Patch lists the editable fields of an item. Nil fields are kept.
type Patch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	Featured    *bool     `json:"featured"`
	Published   *bool     `json:"published"`
	ClientID    *string   `json:"client_id"`
	ProjectID   *string   `json:"project_id"`
}

// Service manages portfolio items and their images.
type Service struct {
	store   storage.PortfolioStore
	media   MediaStore
	syncer  *integration.Syncer
	tracker Tracker
	log     *logger.Logger
}

// New constructs a portfolio service. A nil media store disables image
// uploads.
func New(store storage.PortfolioStore, media MediaStore, syncer *integration.Syncer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("portfolio")
	}
	return &Service{store: store, media: media, syncer: syncer, log: log}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(tracker Tracker) {
	s.tracker = tracker
}

// Create stores an item. Client and project names are copied from the
// referenced records.
func (s *Service) Create(ctx context.Context, it portfolio.Item) (portfolio.Item, error) {
	it.AgencyID = strings.TrimSpace(it.AgencyID)
	if it.AgencyID == "" {
		return portfolio.Item{}, apperrors.InvalidInput("agency_id is required")
	}
	if err := normalize(&it); err != nil {
		return portfolio.Item{}, err
	}
	if err := s.link(ctx, &it, it.ClientID, it.ProjectID); err != nil {
		return portfolio.Item{}, err
	}
	// Images are attached through SetImage only.
	it.ImagePath, it.ImageURL = "", ""

	created, err := s.store.CreatePortfolioItem(ctx, it)
	if err != nil {
		return portfolio.Item{}, err
	}
	if created.Published && s.tracker != nil {
		s.tracker.Track(ctx, created.AgencyID, onboarding.StepPublishPortfolio)
	}
	s.log.WithField("agency_id", created.AgencyID).WithField("item_id", created.ID).Info("portfolio item created")
	return created, nil
}

// Get retrieves an item.
func (s *Service) Get(ctx context.Context, agencyID, id string) (portfolio.Item, error) {
	it, err := s.store.GetPortfolioItem(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return portfolio.Item{}, apperrors.NotFound("portfolio item", id)
	}
	return it, err
}

// List returns items matching filter, featured first.
func (s *Service) List(ctx context.Context, agencyID string, filter portfolio.Filter) ([]portfolio.Item, error) {
	items, err := s.store.ListPortfolioItems(ctx, agencyID, filter)
	if err != nil {
		return nil, err
	}
	featured := make([]portfolio.Item, 0, len(items))
	rest := make([]portfolio.Item, 0, len(items))
	for _, it := range items {
		if it.Featured {
			featured = append(featured, it)
		} else {
			rest = append(rest, it)
		}
	}
	return append(featured, rest...), nil
}

// Update applies a patch.
func (s *Service) Update(ctx context.Context, agencyID, id string, patch Patch) (portfolio.Item, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return portfolio.Item{}, err
	}
	after := before
	after.Tags = append([]string(nil), before.Tags...)
	if patch.Title != nil {
		after.Title = *patch.Title
	}
	if patch.Description != nil {
		after.Description = *patch.Description
	}
	if patch.Category != nil {
		after.Category = *patch.Category
	}
	if patch.Tags != nil {
		after.Tags = *patch.Tags
	}
	if patch.Featured != nil {
		after.Featured = *patch.Featured
	}
	if patch.Published != nil {
		after.Published = *patch.Published
	}
	if err := normalize(&after); err != nil {
		return portfolio.Item{}, err
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
			return portfolio.Item{}, err
		}
	}

	updated, err := s.store.UpdatePortfolioItem(ctx, after)
	if err != nil {
		return portfolio.Item{}, err
	}
	if updated.Published && !before.Published && s.tracker != nil {
		s.tracker.Track(ctx, updated.AgencyID, onboarding.StepPublishPortfolio)
	}
	s.log.WithField("agency_id", agencyID).WithField("item_id", id).Info("portfolio item updated")
	return updated, nil
}

// SetImage uploads a new image for the item and removes the previous one.
// An empty contentType is sniffed from the data.
func (s *Service) SetImage(ctx context.Context, agencyID, id string, data []byte, contentType string) (portfolio.Item, error) {
	if s.media == nil {
		return portfolio.Item{}, apperrors.Unavailable("media storage is not configured")
	}
	if len(data) == 0 {
		return portfolio.Item{}, apperrors.InvalidInput("image is empty")
	}
	if len(data) > MaxImageBytes {
		return portfolio.Item{}, apperrors.InvalidInput("image exceeds %d bytes", MaxImageBytes)
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		return portfolio.Item{}, apperrors.InvalidInput("unsupported image type %q", contentType)
	}

	it, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return portfolio.Item{}, err
	}
	objectPath := path.Join(agencyID, "portfolio", id, uuid.NewString()+ext)
	if err := s.media.Upload(ctx, objectPath, data, contentType); err != nil {
		return portfolio.Item{}, apperrors.Internal("upload image", err)
	}

	previous := it.ImagePath
	it.ImagePath = objectPath
	it.ImageURL = s.media.PublicURL(objectPath)
	updated, err := s.store.UpdatePortfolioItem(ctx, it)
	if err != nil {
		if derr := s.media.Delete(ctx, objectPath); derr != nil {
			s.log.WithError(derr).WithField("path", objectPath).Warn("remove orphaned image")
		}
		return portfolio.Item{}, err
	}
	if previous != "" {
		if err := s.media.Delete(ctx, previous); err != nil {
			s.log.WithError(err).WithField("path", previous).Warn("remove replaced image")
		}
	}
	s.log.WithField("agency_id", agencyID).WithField("item_id", id).WithField("bytes", len(data)).Info("portfolio image stored")
	return updated, nil
}

// Delete removes the item and its image.
func (s *Service) Delete(ctx context.Context, agencyID, id string) error {
	it, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePortfolioItem(ctx, agencyID, id); err != nil {
		return err
	}
	if it.ImagePath != "" && s.media != nil {
		if err := s.media.Delete(ctx, it.ImagePath); err != nil {
			s.log.WithError(err).WithField("path", it.ImagePath).Warn("remove image of deleted item")
		}
	}
	s.log.WithField("agency_id", agencyID).WithField("item_id", id).Info("portfolio item deleted")
	return nil
}

func (s *Service) link(ctx context.Context, it *portfolio.Item, clientID, projectID string) error {
	link, err := s.syncer.Resolve(ctx, it.AgencyID, clientID, projectID)
	if err != nil {
		return err
	}
	it.ClientID, it.ClientName = link.ClientID, link.ClientName
	it.ProjectID, it.ProjectName = link.ProjectID, link.ProjectName
	return nil
}

func normalize(it *portfolio.Item) error {
	it.Title = strings.TrimSpace(it.Title)
	it.Description = strings.TrimSpace(it.Description)
	it.Category = strings.ToLower(strings.TrimSpace(it.Category))
	if it.Title == "" {
		return apperrors.InvalidInput("title is required")
	}
	seen := make(map[string]struct{}, len(it.Tags))
	tags := make([]string, 0, len(it.Tags))
	for _, t := range it.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, dup := seen[t]; t == "" || dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	it.Tags = tags
	return nil
}
