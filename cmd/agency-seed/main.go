// Command agency-seed creates a demo agency with clients, projects, posts,
// transactions and portfolio items in the configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/agency_layer/internal/app"
	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/bootstrap"
	"github.com/R3E-Network/agency_layer/internal/config"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "optional .env file loaded before configuration")
	ownerID := flag.String("owner-id", "", "auth user id of the agency owner (required)")
	ownerEmail := flag.String("owner-email", "owner@example.com", "owner email")
	agencyName := flag.String("agency", "Northwind Studio", "agency name")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}
	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "-owner-id is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}).Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, bootstrap.Options{WithoutJobs: true, WithoutRealtime: true}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}
	defer rt.Close()

	owner := actor.Actor{UserID: *ownerID, Email: *ownerEmail, Name: "Studio Owner"}
	agencyID, err := seed(ctx, rt.App, *agencyName, owner, time.Now().UTC())
	if err != nil {
		log.WithError(err).Fatal("seed")
	}
	log.WithField("agency_id", agencyID).Info("demo data created")
	fmt.Println(agencyID)
}

type demoClient struct {
	name, company, email string
	stage                client.Stage
	project              string
	budget               int64
	status               project.Status
}

var demoClients = []demoClient{
	{"Ava Chen", "Bloom Florals", "ava@bloom.test", client.StageWon, "Spring campaign", 480000, project.StatusInProgress},
	{"Marco Diaz", "Diaz Fitness", "marco@diazfit.test", client.StageNegotiation, "Brand refresh", 950000, project.StatusPlanning},
	{"Priya Nair", "Nair Legal", "priya@nairlegal.test", client.StageWon, "LinkedIn retainer", 300000, project.StatusReview},
	{"Tom Becker", "Becker Coffee", "tom@becker.test", client.StageLead, "", 0, ""},
}

func seed(ctx context.Context, a *app.Application, name string, owner actor.Actor, now time.Time) (string, error) {
	agency, err := a.Agencies.Create(ctx, name, owner)
	if err != nil {
		return "", fmt.Errorf("create agency: %w", err)
	}
	ctx = actor.With(ctx, owner)

	for i, dc := range demoClients {
		c, err := a.Clients.Create(ctx, client.Client{
			AgencyID: agency.ID,
			Name:     dc.name,
			Company:  dc.company,
			Email:    dc.email,
			Stage:    dc.stage,
		})
		if err != nil {
			return "", fmt.Errorf("create client %s: %w", dc.name, err)
		}
		if dc.project == "" {
			continue
		}

		due := now.AddDate(0, 1+i, 0)
		p, err := a.Projects.Create(ctx, project.Project{
			AgencyID:    agency.ID,
			ClientID:    c.ID,
			Name:        dc.project,
			Status:      dc.status,
			BudgetCents: dc.budget,
			StartDate:   &now,
			DueDate:     &due,
		})
		if err != nil {
			return "", fmt.Errorf("create project %s: %w", dc.project, err)
		}

		for d, platform := range []calendar.Platform{calendar.PlatformInstagram, calendar.PlatformLinkedIn} {
			if _, err := a.Calendar.Schedule(ctx, calendar.Event{
				AgencyID:    agency.ID,
				Title:       fmt.Sprintf("%s post %d", dc.company, d+1),
				Caption:     "Draft caption",
				Platform:    platform,
				Status:      calendar.StatusScheduled,
				ScheduledAt: now.Add(time.Duration(24*(d+1+i)) * time.Hour),
				ClientID:    c.ID,
				ProjectID:   p.ID,
			}); err != nil {
				return "", fmt.Errorf("schedule post: %w", err)
			}
		}

		deposit := now.AddDate(0, 0, -7)
		if _, err := a.Finance.Record(ctx, finance.Transaction{
			AgencyID:    agency.ID,
			Kind:        finance.KindIncome,
			Description: dc.project + " deposit",
			Category:    "retainer",
			AmountCents: dc.budget / 2,
			Status:      finance.StatusPaid,
			PaidAt:      &deposit,
			ClientID:    c.ID,
			ProjectID:   p.ID,
		}); err != nil {
			return "", fmt.Errorf("record deposit: %w", err)
		}
		balanceDue := now.AddDate(0, 0, 14)
		if _, err := a.Finance.Record(ctx, finance.Transaction{
			AgencyID:    agency.ID,
			Kind:        finance.KindIncome,
			Description: dc.project + " balance",
			Category:    "retainer",
			AmountCents: dc.budget - dc.budget/2,
			Status:      finance.StatusPending,
			DueDate:     &balanceDue,
			ClientID:    c.ID,
			ProjectID:   p.ID,
		}); err != nil {
			return "", fmt.Errorf("record balance: %w", err)
		}

		if _, err := a.Portfolio.Create(ctx, portfolio.Item{
			AgencyID:  agency.ID,
			Title:     dc.project,
			Category:  "social",
			ClientID:  c.ID,
			ProjectID: p.ID,
			Published: dc.status == project.StatusReview,
		}); err != nil {
			return "", fmt.Errorf("create portfolio item: %w", err)
		}
	}

	if _, err := a.Finance.Record(ctx, finance.Transaction{
		AgencyID:    agency.ID,
		Kind:        finance.KindExpense,
		Description: "Design software",
		Category:    "tools",
		AmountCents: 5400,
		Status:      finance.StatusPaid,
		PaidAt:      &now,
	}); err != nil {
		return "", fmt.Errorf("record expense: %w", err)
	}
	return agency.ID, nil
}
