// Package bootstrap assembles the application from configuration: storage
// backend, media bucket, cache, realtime watcher and scheduler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/R3E-Network/agency_layer/internal/app"
	"github.com/R3E-Network/agency_layer/internal/app/httpapi"
	"github.com/R3E-Network/agency_layer/internal/app/jobs"
	"github.com/R3E-Network/agency_layer/internal/app/storage/postgres"
	sbstore "github.com/R3E-Network/agency_layer/internal/app/storage/supabase"
	"github.com/R3E-Network/agency_layer/internal/cache"
	"github.com/R3E-Network/agency_layer/internal/config"
	"github.com/R3E-Network/agency_layer/internal/middleware"
	"github.com/R3E-Network/agency_layer/internal/platform/migrations"
	"github.com/R3E-Network/agency_layer/pkg/logger"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

// Runtime is a built application plus the resources it owns.
type Runtime struct {
	App      *app.Application
	Supabase *sbclient.Client

	cfg     *config.Config
	closers []io.Closer
}

// Options controls optional parts of Build.
type Options struct {
	// WithoutJobs leaves the scheduler out even when configuration enables it.
	WithoutJobs bool
	// WithoutRealtime leaves the realtime watcher out.
	WithoutRealtime bool
}

// Build wires stores and infrastructure for cfg.Storage.Backend.
func Build(ctx context.Context, cfg *config.Config, opts Options, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.NewDefault("bootstrap")
	}
	rt := &Runtime{cfg: cfg}

	var stores app.Stores
	var appOpts app.Options

	if cfg.Supabase.Enabled() {
		client, err := sbclient.NewEnhanced(supabaseConfig(cfg.Supabase, log))
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		rt.Supabase = client
		appOpts.Media = client.Storage().From(cfg.Supabase.Bucket)
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, postgres.Options{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db)
		if cfg.Database.Migrate {
			version, err := migrations.Up(db.DB)
			if err != nil {
				_ = rt.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.WithField("version", version).Info("schema migrated")
		}
		stores = app.StoresFrom(postgres.New(db))
	case config.BackendSupabase:
		if rt.Supabase == nil {
			return nil, errors.New("supabase backend is not configured")
		}
		stores = app.StoresFrom(sbstore.New(rt.Supabase))
		if cfg.Supabase.Realtime && !opts.WithoutRealtime {
			appOpts.Realtime = rt.Supabase.Realtime()
		}
	default:
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client, err := cache.DialRedis(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client)
		appOpts.Cache = cache.NewRedis(client, cfg.Redis.Prefix)
	}
	appOpts.DashboardTTL = cfg.Redis.DashboardTTL

	if !cfg.Jobs.Disabled && !opts.WithoutJobs {
		appOpts.Jobs = &jobs.Config{
			ReconcileSchedule: cfg.Jobs.ReconcileSchedule,
			ReminderSchedule:  cfg.Jobs.ReminderSchedule,
			OverdueSchedule:   cfg.Jobs.OverdueSchedule,
			ReminderWindow:    cfg.Jobs.ReminderWindow,
		}
	}

	application, err := app.New(stores, appOpts, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.App = application

	log.WithFields(map[string]any{
		"storage":  cfg.Storage.Backend,
		"redis":    appOpts.Cache != nil,
		"realtime": appOpts.Realtime != nil,
		"jobs":     appOpts.Jobs != nil,
	}).Info("application assembled")
	return rt, nil
}

// HTTPOptions derives router options from the configuration.
func (rt *Runtime) HTTPOptions() httpapi.Options {
	opts := httpapi.Options{
		Auth: middleware.AuthConfig{
			Secret:   rt.cfg.Auth.JWTSecret,
			Issuer:   rt.cfg.Auth.Issuer,
			Audience: rt.cfg.Auth.Audience,
		},
		CORSOrigins:  rt.cfg.Server.Origins(),
		RateLimit:    rt.cfg.Server.RateLimit,
		RateBurst:    rt.cfg.Server.RateBurst,
		AuditLogPath: rt.cfg.Server.AuditLogPath,
		Status:       rt.App,
	}
	if rt.Supabase != nil {
		opts.Identity = rt.Supabase.Auth()
	}
	return opts
}

// Close releases database and cache connections.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func supabaseConfig(cfg config.SupabaseConfig, log *logger.Logger) sbclient.EnhancedConfig {
	retry := sbclient.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	breaker := sbclient.DefaultCircuitBreakerConfig()
	breaker.FailureThreshold = cfg.BreakerThreshold
	breaker.Timeout = cfg.BreakerCooldown
	breaker.OnStateChange = func(from, to sbclient.CircuitState) {
		log.WithFields(map[string]any{"from": from.String(), "to": to.String()}).Warn("supabase circuit changed state")
	}

	return sbclient.EnhancedConfig{
		Config: sbclient.Config{
			URL:    cfg.URL,
			APIKey: cfg.ServiceKey,
		},
		RetryConfig:          retry,
		CircuitBreakerConfig: breaker,
		EnableResilience:     cfg.Resilience,
	}
}
