package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
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

// Patch lists the editable fields of a transaction. Nil fields are kept.
type Patch struct {
	Kind         *string    `json:"kind"`
	Description  *string    `json:"description"`
	Category     *string    `json:"category"`
	AmountCents  *int64     `json:"amount_cents"`
	Status       *string    `json:"status"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	ClientID     *string    `json:"client_id"`
	ProjectID    *string    `json:"project_id"`
}

// Service manages income and expense records.
type Service struct {
	store    storage.TransactionStore
	syncer   *integration.Syncer
	notifier Notifier
	tracker  Tracker
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a finance service.
func New(store storage.TransactionStore, syncer *integration.Syncer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("finance")
	}
	return &Service{store: store, syncer: syncer, log: log, now: storage.Now}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier, tracker Tracker) {
	s.notifier = notifier
	s.tracker = tracker
}

// Record stores a transaction and refreshes linked totals.
func (s *Service) Record(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	tx.AgencyID = strings.TrimSpace(tx.AgencyID)
	if tx.AgencyID == "" {
		return finance.Transaction{}, apperrors.InvalidInput("agency_id is required")
	}
	if tx.Status == "" {
		tx.Status = finance.StatusPending
	}
	if err := s.normalize(&tx); err != nil {
		return finance.Transaction{}, err
	}
	if err := s.link(ctx, &tx, tx.ClientID, tx.ProjectID); err != nil {
		return finance.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return finance.Transaction{}, err
	}
	// Sync failures are logged and metered by the syncer; reconcile repairs them.
	_ = s.syncer.TransactionChanged(ctx, nil, &created)

	if s.tracker != nil {
		s.tracker.Track(ctx, created.AgencyID, onboarding.StepRecordTransaction)
	}
	s.log.WithField("agency_id", created.AgencyID).
		WithField("transaction_id", created.ID).
		WithField("kind", created.Kind).
		Info("transaction recorded")
	return created, nil
}

// Get retrieves a transaction.
func (s *Service) Get(ctx context.Context, agencyID, id string) (finance.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return finance.Transaction{}, apperrors.NotFound("transaction", id)
	}
	return tx, err
}

// List returns transactions matching filter.
func (s *Service) List(ctx context.Context, agencyID string, filter finance.Filter) ([]finance.Transaction, error) {
	if filter.Kind != "" {
		filter.Kind = finance.NormalizeKind(string(filter.Kind))
		if !filter.Kind.Valid() {
			return nil, apperrors.InvalidInput("invalid kind %q", filter.Kind)
		}
	}
	if filter.Status != "" {
		filter.Status = finance.NormalizeStatus(string(filter.Status))
		if !filter.Status.Valid() {
			return nil, apperrors.InvalidInput("invalid status %q", filter.Status)
		}
	}
	return s.store.ListTransactions(ctx, agencyID, filter)
}

// Update applies a patch and refreshes the totals of every record it
// touched before and after.
func (s *Service) Update(ctx context.Context, agencyID, id string, patch Patch) (finance.Transaction, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return finance.Transaction{}, err
	}
	after := before
	if patch.Kind != nil {
		after.Kind = finance.Kind(*patch.Kind)
	}
	if patch.Description != nil {
		after.Description = *patch.Description
	}
	if patch.Category != nil {
		after.Category = *patch.Category
	}
	if patch.AmountCents != nil {
		after.AmountCents = *patch.AmountCents
	}
	if patch.Status != nil {
		after.Status = finance.Status(*patch.Status)
	}
	switch {
	case patch.ClearDueDate:
		after.DueDate = nil
	case patch.DueDate != nil:
		t := patch.DueDate.UTC()
		after.DueDate = &t
	}
	if err := s.normalize(&after); err != nil {
		return finance.Transaction{}, err
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
			return finance.Transaction{}, err
		}
	}
	return s.save(ctx, before, after)
}

// MarkPaid settles an open transaction at the given time, or now when at
// is zero.
func (s *Service) MarkPaid(ctx context.Context, agencyID, id string, at time.Time) (finance.Transaction, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return finance.Transaction{}, err
	}
	if before.Status == finance.StatusPaid {
		return before, nil
	}
	if !before.Status.Open() {
		return finance.Transaction{}, apperrors.Conflict("cannot pay a %s transaction", before.Status)
	}
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	after := before
	after.Status = finance.StatusPaid
	after.PaidAt = &at
	updated, err := s.save(ctx, before, after)
	if err != nil {
		return finance.Transaction{}, err
	}
	if updated.Kind == finance.KindIncome {
		s.notify(ctx, updated, "Payment received", fmt.Sprintf("%s: %s", updated.Description, formatCents(updated.AmountCents)))
	}
	return updated, nil
}

// Cancel voids a transaction that was not paid.
func (s *Service) Cancel(ctx context.Context, agencyID, id string) (finance.Transaction, error) {
	before, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return finance.Transaction{}, err
	}
	if before.Status == finance.StatusCancelled {
		return before, nil
	}
	if before.Status == finance.StatusPaid {
		return finance.Transaction{}, apperrors.Conflict("cannot cancel a paid transaction")
	}
	after := before
	after.Status = finance.StatusCancelled
	return s.save(ctx, before, after)
}

// Delete removes a transaction and refreshes linked totals.
func (s *Service) Delete(ctx context.Context, agencyID, id string) error {
	tx, err := s.Get(ctx, agencyID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, agencyID, id); err != nil {
		return err
	}
	_ = s.syncer.TransactionChanged(ctx, &tx, nil)
	s.log.WithField("agency_id", agencyID).WithField("transaction_id", id).Info("transaction deleted")
	return nil
}

// Summary totals paid income and expenses booked in [from, to) and all
// open receivables.
func (s *Service) Summary(ctx context.Context, agencyID string, from, to time.Time) (finance.Summary, error) {
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return finance.Summary{}, apperrors.InvalidInput("to must be after from")
	}
	txs, err := s.store.ListTransactions(ctx, agencyID, finance.Filter{})
	if err != nil {
		return finance.Summary{}, err
	}
	return finance.Summarize(txs, from, to), nil
}

// MarkOverdue flags pending transactions whose due date passed and notifies
// staff about overdue income. It returns how many records changed.
func (s *Service) MarkOverdue(ctx context.Context, agencyID string, now time.Time) (int, error) {
	txs, err := s.store.ListTransactions(ctx, agencyID, finance.Filter{Status: finance.StatusPending})
	if err != nil {
		return 0, err
	}
	var (
		changed int
		errs    []error
	)
	for _, before := range txs {
		if before.DueDate == nil || !before.DueDate.Before(now) {
			continue
		}
		after := before
		after.Status = finance.StatusOverdue
		updated, err := s.save(ctx, before, after)
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", before.ID, err))
			continue
		}
		changed++
		if updated.Kind == finance.KindIncome {
			body := fmt.Sprintf("%s (%s) was due %s", updated.Description, formatCents(updated.AmountCents), updated.DueDate.Format("2006-01-02"))
			if updated.ClientName != "" {
				body = updated.ClientName + ": " + body
			}
			s.notify(ctx, updated, "Invoice overdue", body)
		}
	}
	if changed > 0 {
		s.log.WithField("agency_id", agencyID).WithField("count", changed).Info("transactions marked overdue")
	}
	return changed, errors.Join(errs...)
}

func (s *Service) save(ctx context.Context, before, after finance.Transaction) (finance.Transaction, error) {
	updated, err := s.store.UpdateTransaction(ctx, after)
	if err != nil {
		return finance.Transaction{}, err
	}
	_ = s.syncer.TransactionChanged(ctx, &before, &updated)
	return updated, nil
}

func (s *Service) link(ctx context.Context, tx *finance.Transaction, clientID, projectID string) error {
	link, err := s.syncer.Resolve(ctx, tx.AgencyID, clientID, projectID)
	if err != nil {
		return err
	}
	tx.ClientID, tx.ClientName = link.ClientID, link.ClientName
	tx.ProjectID, tx.ProjectName = link.ProjectID, link.ProjectName
	return nil
}

func (s *Service) notify(ctx context.Context, tx finance.Transaction, title, body string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, notification.Notification{
		AgencyID:     tx.AgencyID,
		Kind:         notification.KindFinance,
		Title:        title,
		Body:         body,
		ResourceType: "transaction",
		ResourceID:   tx.ID,
	}); err != nil {
		s.log.WithError(err).WithField("transaction_id", tx.ID).Warn("notify finance change")
	}
}

func (s *Service) normalize(tx *finance.Transaction) error {
	tx.Kind = finance.NormalizeKind(string(tx.Kind))
	tx.Status = finance.NormalizeStatus(string(tx.Status))
	tx.Description = strings.TrimSpace(tx.Description)
	tx.Category = strings.ToLower(strings.TrimSpace(tx.Category))
	if !tx.Kind.Valid() {
		return apperrors.InvalidInput("kind must be income or expense")
	}
	if !tx.Status.Valid() {
		return apperrors.InvalidInput("invalid status %q", tx.Status)
	}
	if tx.Description == "" {
		return apperrors.InvalidInput("description is required")
	}
	if tx.AmountCents <= 0 {
		return apperrors.InvalidInput("amount_cents must be positive")
	}
	switch tx.Status {
	case finance.StatusPaid:
		if tx.PaidAt == nil {
			at := s.now().UTC()
			tx.PaidAt = &at
		}
	default:
		tx.PaidAt = nil
	}
	return nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
