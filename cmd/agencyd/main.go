// Command agencyd serves the agency HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/httpapi"
	"github.com/R3E-Network/agency_layer/internal/bootstrap"
	"github.com/R3E-Network/agency_layer/internal/config"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

var exitCode int

func main() {
	defer func() { os.Exit(exitCode) }()
	run()
}

func run() {
	addr := flag.String("addr", "", "listen address (overrides AGENCY_HTTP_ADDR)")
	noJobs := flag.Bool("no-jobs", false, "disable the maintenance scheduler")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("agencyd").WithError(err).Fatal("load configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	root := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})
	log := root.Named("agencyd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, bootstrap.Options{WithoutJobs: *noJobs}, root)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.WithError(err).Warn("close resources")
		}
	}()

	api, err := httpapi.NewHandler(rt.App.HTTPServices(), rt.HTTPOptions(), root.Named("http"))
	if err != nil {
		log.WithError(err).Fatal("build http handler")
	}
	defer api.Close()

	if err := rt.App.Start(ctx); err != nil {
		log.WithError(err).Fatal("start services")
	}
	go api.RunLimiterCleanup(ctx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	failed := false
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server failed")
			failed = true
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := rt.App.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("stop services")
	}
	log.Info("stopped")
	if failed {
		exitCode = 1
	}
}
