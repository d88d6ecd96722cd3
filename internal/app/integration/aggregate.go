package integration

import (
	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
)

// ProjectTotals are the derived fields stored on a project.
type ProjectTotals struct {
	PaidCents  int64
	EventCount int
}

// ClientTotals derives a client's aggregates from the records linked to it.
// Inputs may contain records of other clients; they are ignored.
func ClientTotals(clientID string, projects []project.Project, events []calendar.Event, txs []finance.Transaction) client.Aggregates {
	var agg client.Aggregates
	for _, p := range projects {
		if p.ClientID != clientID {
			continue
		}
		agg.ProjectCount++
		if p.Status.Active() {
			agg.ActiveProjects++
		}
		if p.Status != project.StatusCancelled {
			agg.TotalBudgetCents += p.BudgetCents
		}
	}
	for _, tx := range txs {
		if tx.ClientID != clientID || tx.Kind != finance.KindIncome {
			continue
		}
		switch {
		case tx.Status == finance.StatusPaid:
			agg.RevenueCents += tx.AmountCents
		case tx.Status.Open():
			agg.OutstandingCents += tx.AmountCents
		}
	}
	for _, e := range events {
		if e.ClientID == clientID && e.Status.Pending() {
			agg.ScheduledPosts++
		}
	}
	return agg
}

// ProjectTotalsFor derives a project's totals from linked events and
// transactions.
func ProjectTotalsFor(projectID string, events []calendar.Event, txs []finance.Transaction) ProjectTotals {
	var totals ProjectTotals
	for _, tx := range txs {
		if tx.ProjectID == projectID && tx.Kind == finance.KindIncome && tx.Status == finance.StatusPaid {
			totals.PaidCents += tx.AmountCents
		}
	}
	for _, e := range events {
		if e.ProjectID == projectID && e.Status != calendar.StatusCancelled {
			totals.EventCount++
		}
	}
	return totals
}

func projectTotals(p project.Project) ProjectTotals {
	return ProjectTotals{PaidCents: p.PaidCents, EventCount: p.EventCount}
}
