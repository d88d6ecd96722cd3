package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/metrics"
)

// Report counts the repairs made by a reconcile pass.
type Report struct {
	AgencyID         string `json:"agency_id"`
	Checked          int    `json:"checked"`
	ClientNames      int    `json:"client_names"`
	ProjectNames     int    `json:"project_names"`
	DanglingClients  int    `json:"dangling_clients"`
	DanglingProjects int    `json:"dangling_projects"`
	ClientMismatches int    `json:"client_mismatches"`
	ClientTotals     int    `json:"client_totals"`
	ProjectTotals    int    `json:"project_totals"`
}

// Repairs sums every repair kind.
func (r Report) Repairs() int {
	return r.ClientNames + r.ProjectNames + r.DanglingClients + r.DanglingProjects +
		r.ClientMismatches + r.ClientTotals + r.ProjectTotals
}

func (r Report) record() {
	metrics.RecordRepairs("client_name", r.ClientNames)
	metrics.RecordRepairs("project_name", r.ProjectNames)
	metrics.RecordRepairs("dangling_client", r.DanglingClients)
	metrics.RecordRepairs("dangling_project", r.DanglingProjects)
	metrics.RecordRepairs("client_mismatch", r.ClientMismatches)
	metrics.RecordRepairs("client_totals", r.ClientTotals)
	metrics.RecordRepairs("project_totals", r.ProjectTotals)
}

// Reconcile loads every collection of an agency, repairs stale names, dangling
// references and project/client mismatches on linked records, then rewrites
// every aggregate that drifted.
func (s *Syncer) Reconcile(ctx context.Context, agencyID string) (Report, error) {
	report := Report{AgencyID: agencyID}
	err := s.run(ctx, "reconcile", agencyID, func() error {
		return s.reconcile(ctx, agencyID, &report)
	})
	report.record()
	s.log.WithField("agency_id", agencyID).
		WithField("checked", report.Checked).
		WithField("repairs", report.Repairs()).
		Info("reconcile finished")
	return report, err
}

func (s *Syncer) reconcile(ctx context.Context, agencyID string, report *Report) error {
	clients, err := s.stores.Clients.ListClients(ctx, agencyID)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	projects, err := s.stores.Projects.ListProjects(ctx, agencyID)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	events, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{})
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	items, err := s.stores.Portfolio.ListPortfolioItems(ctx, agencyID, portfolio.Filter{})
	if err != nil {
		return fmt.Errorf("list portfolio items: %w", err)
	}

	clientsByID := make(map[string]client.Client, len(clients))
	for _, c := range clients {
		clientsByID[c.ID] = c
	}
	var errs []error

	projectsByID := make(map[string]project.Project, len(projects))
	for i, p := range projects {
		report.Checked++
		c, ok := clientsByID[p.ClientID]
		switch {
		case p.ClientID != "" && !ok:
			p.ClientID, p.ClientName = "", ""
			report.DanglingClients++
		case ok && p.ClientName != c.Name:
			p.ClientName = c.Name
			report.ClientNames++
		}
		if p != projects[i] {
			if _, err := s.stores.Projects.UpdateProject(ctx, p); err != nil {
				errs = append(errs, fmt.Errorf("project %s: %w", p.ID, err))
			}
			projects[i] = p
		}
		projectsByID[p.ID] = p
	}

	repair := func(l *Link) bool {
		before := *l
		if l.ProjectID != "" {
			p, ok := projectsByID[l.ProjectID]
			if !ok {
				l.ProjectID, l.ProjectName = "", ""
				report.DanglingProjects++
			} else {
				if l.ProjectName != p.Name {
					l.ProjectName = p.Name
					report.ProjectNames++
				}
				if l.ClientID != p.ClientID {
					l.ClientID = p.ClientID
					l.ClientName = p.ClientName
					report.ClientMismatches++
				}
			}
		}
		if l.ClientID != "" {
			c, ok := clientsByID[l.ClientID]
			if !ok {
				l.ClientID, l.ClientName = "", ""
				report.DanglingClients++
			} else if l.ClientName != c.Name {
				l.ClientName = c.Name
				report.ClientNames++
			}
		} else if l.ClientName != "" {
			l.ClientName = ""
			report.DanglingClients++
		}
		return *l != before
	}

	for i, e := range events {
		report.Checked++
		l := Link{e.ClientID, e.ClientName, e.ProjectID, e.ProjectName}
		if !repair(&l) {
			continue
		}
		e.ClientID, e.ClientName, e.ProjectID, e.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Events.UpdateEvent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.ID, err))
		}
		events[i] = e
	}
	for i, tx := range txs {
		report.Checked++
		l := Link{tx.ClientID, tx.ClientName, tx.ProjectID, tx.ProjectName}
		if !repair(&l) {
			continue
		}
		tx.ClientID, tx.ClientName, tx.ProjectID, tx.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Transactions.UpdateTransaction(ctx, tx); err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
		}
		txs[i] = tx
	}
	for _, it := range items {
		report.Checked++
		l := Link{it.ClientID, it.ClientName, it.ProjectID, it.ProjectName}
		if !repair(&l) {
			continue
		}
		it.ClientID, it.ClientName, it.ProjectID, it.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Portfolio.UpdatePortfolioItem(ctx, it); err != nil {
			errs = append(errs, fmt.Errorf("portfolio item %s: %w", it.ID, err))
		}
	}

	for _, p := range projects {
		totals := ProjectTotalsFor(p.ID, events, txs)
		if totals == projectTotals(p) {
			continue
		}
		p.PaidCents, p.EventCount = totals.PaidCents, totals.EventCount
		if _, err := s.stores.Projects.UpdateProject(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("project %s totals: %w", p.ID, err))
			continue
		}
		report.ProjectTotals++
	}
	for _, c := range clients {
		report.Checked++
		agg := ClientTotals(c.ID, projects, events, txs)
		if agg == c.Aggregates() {
			continue
		}
		c.ApplyAggregates(agg)
		if _, err := s.stores.Clients.UpdateClient(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("client %s totals: %w", c.ID, err))
			continue
		}
		report.ClientTotals++
	}
	return errors.Join(errs...)
}
