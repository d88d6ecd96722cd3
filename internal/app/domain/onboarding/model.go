// Package onboarding tracks the per-user tutorial checklist.
package onboarding

import "time"

// Step is one checklist entry.
type Step string

const (
	StepCreateClient      Step = "create_client"
	StepCreateProject     Step = "create_project"
	StepSchedulePost      Step = "schedule_post"
	StepRecordTransaction Step = "record_transaction"
	StepPublishPortfolio  Step = "publish_portfolio"
	StepInviteMember      Step = "invite_member"
)

// Steps is the checklist in presentation order.
var Steps = []Step{
	StepCreateClient,
	StepCreateProject,
	StepSchedulePost,
	StepRecordTransaction,
	StepPublishPortfolio,
	StepInviteMember,
}

func (s Step) Valid() bool {
	for _, st := range Steps {
		if st == s {
			return true
		}
	}
	return false
}

// Progress is a user's checklist state inside one agency.
type Progress struct {
	AgencyID       string    `json:"agency_id" db:"agency_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	CompletedSteps []string  `json:"completed_steps" db:"-"`
	Dismissed      bool      `json:"dismissed" db:"dismissed"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Done reports whether step was completed.
func (p Progress) Done(step Step) bool {
	for _, s := range p.CompletedSteps {
		if s == string(step) {
			return true
		}
	}
	return false
}

// Percent is the completed share of the checklist, 0..100.
func (p Progress) Percent() int {
	done := 0
	for _, s := range Steps {
		if p.Done(s) {
			done++
		}
	}
	return done * 100 / len(Steps)
}

// Complete marks step done, keeping checklist order. It reports whether
// anything changed.
func (p *Progress) Complete(step Step) bool {
	if p.Done(step) {
		return false
	}
	var ordered []string
	for _, s := range Steps {
		if s == step || p.Done(s) {
			ordered = append(ordered, string(s))
		}
	}
	p.CompletedSteps = ordered
	return true
}
