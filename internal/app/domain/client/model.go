// Package client models CRM client records.
package client

import (
	"strings"
	"time"
)

// Stage is a client's position in the sales pipeline.
type Stage string

const (
	StageLead        Stage = "lead"
	StageContacted   Stage = "contacted"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// Stages lists pipeline stages in board order.
var Stages = []Stage{StageLead, StageContacted, StageProposal, StageNegotiation, StageWon, StageLost}

func NormalizeStage(raw string) Stage {
	return Stage(strings.ToLower(strings.TrimSpace(raw)))
}

func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// Open reports whether the deal is still in progress.
func (s Stage) Open() bool {
	return s != StageWon && s != StageLost
}

// Client is a CRM record. The aggregate block is maintained by the
// integration layer and ignored on user writes.
type Client struct {
	ID       string   `json:"id" db:"id"`
	AgencyID string   `json:"agency_id" db:"agency_id"`
	Name     string   `json:"name" db:"name"`
	Company  string   `json:"company" db:"company"`
	Email    string   `json:"email" db:"email"`
	Phone    string   `json:"phone" db:"phone"`
	Notes    string   `json:"notes" db:"notes"`
	Stage    Stage    `json:"stage" db:"stage"`
	Tags     []string `json:"tags" db:"-"`

	ProjectCount     int   `json:"project_count" db:"project_count"`
	ActiveProjects   int   `json:"active_projects" db:"active_projects"`
	TotalBudgetCents int64 `json:"total_budget_cents" db:"total_budget_cents"`
	RevenueCents     int64 `json:"revenue_cents" db:"revenue_cents"`
	OutstandingCents int64 `json:"outstanding_cents" db:"outstanding_cents"`
	ScheduledPosts   int   `json:"scheduled_posts" db:"scheduled_posts"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Aggregates is the derived block of a client record.
type Aggregates struct {
	ProjectCount     int
	ActiveProjects   int
	TotalBudgetCents int64
	RevenueCents     int64
	OutstandingCents int64
	ScheduledPosts   int
}

// Aggregates returns the client's current derived values.
func (c Client) Aggregates() Aggregates {
	return Aggregates{
		ProjectCount:     c.ProjectCount,
		ActiveProjects:   c.ActiveProjects,
		TotalBudgetCents: c.TotalBudgetCents,
		RevenueCents:     c.RevenueCents,
		OutstandingCents: c.OutstandingCents,
		ScheduledPosts:   c.ScheduledPosts,
	}
}

// ApplyAggregates overwrites the derived block.
func (c *Client) ApplyAggregates(a Aggregates) {
	c.ProjectCount = a.ProjectCount
	c.ActiveProjects = a.ActiveProjects
	c.TotalBudgetCents = a.TotalBudgetCents
	c.RevenueCents = a.RevenueCents
	c.OutstandingCents = a.OutstandingCents
	c.ScheduledPosts = a.ScheduledPosts
}
