// Command agency-reconcile recomputes denormalized names and aggregates for
// one agency or for every agency, printing a JSON report per agency.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/bootstrap"
	"github.com/R3E-Network/agency_layer/internal/config"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Reconciler repairs one agency.
type Reconciler interface {
	Reconcile(ctx context.Context, agencyID string) (integration.Report, error)
}

// AgencyLister enumerates agencies.
type AgencyLister interface {
	IDs(ctx context.Context) ([]string, error)
}

type result struct {
	AgencyID string             `json:"agency_id"`
	Report   integration.Report `json:"report"`
	Repairs  int                `json:"repairs"`
	Error    string             `json:"error,omitempty"`
}

func main() {
	agencyID := flag.String("agency", "", "agency id; empty reconciles every agency")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stderr"}).Named("reconcile")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, bootstrap.Options{WithoutJobs: true, WithoutRealtime: true}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}
	defer rt.Close()

	if err := run(ctx, rt.App.Agencies, rt.App.Syncer, *agencyID, os.Stdout); err != nil {
		log.WithError(err).Error("reconcile finished with errors")
		cancel()
		_ = rt.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, agencies AgencyLister, rec Reconciler, agencyID string, out io.Writer) error {
	ids := []string{agencyID}
	if agencyID == "" {
		var err error
		if ids, err = agencies.IDs(ctx); err != nil {
			return fmt.Errorf("list agencies: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	var errs []error
	for _, id := range ids {
		report, err := rec.Reconcile(ctx, id)
		res := result{AgencyID: id, Report: report, Repairs: report.Repairs()}
		if err != nil {
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("agency %s: %w", id, err))
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
