// Package project models client projects.
package project

import (
	"strings"
	"time"
)

// Status is a project's lifecycle state.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var statuses = []Status{StatusPlanning, StatusInProgress, StatusReview, StatusCompleted, StatusCancelled}

// Statuses returns all statuses in workflow order.
func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return Status(s)
}

func (s Status) Valid() bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Active reports whether work is still ongoing.
func (s Status) Active() bool {
	return s == StatusPlanning || s == StatusInProgress || s == StatusReview
}

// Project is linked to exactly one client. ClientName, PaidCents and
// EventCount are denormalized.
type Project struct {
	ID          string     `json:"id" db:"id"`
	AgencyID    string     `json:"agency_id" db:"agency_id"`
	ClientID    string     `json:"client_id" db:"client_id"`
	ClientName  string     `json:"client_name" db:"client_name"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Status      Status     `json:"status" db:"status"`
	BudgetCents int64      `json:"budget_cents" db:"budget_cents"`
	PaidCents   int64      `json:"paid_cents" db:"paid_cents"`
	Progress    int        `json:"progress" db:"progress"`
	StartDate   *time.Time `json:"start_date,omitempty" db:"start_date"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	EventCount  int        `json:"event_count" db:"event_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Overdue reports whether an active project passed its due date.
func (p Project) Overdue(now time.Time) bool {
	return p.Status.Active() && p.DueDate != nil && p.DueDate.Before(now)
}
