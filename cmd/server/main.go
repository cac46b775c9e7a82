package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/wtselser/internal/api"
	"github.com/dgallion1/wtselser/internal/config"
	"github.com/dgallion1/wtselser/internal/importer"
	"github.com/dgallion1/wtselser/internal/metrics"
	"github.com/dgallion1/wtselser/internal/normalize"
	"github.com/dgallion1/wtselser/internal/parsoid"
	"github.com/dgallion1/wtselser/internal/pipeline"
	"github.com/dgallion1/wtselser/internal/templatedata"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize collaborators.
	var providers templatedata.Chain
	if cfg.TemplateDataFile != "" {
		static, err := templatedata.LoadFile(cfg.TemplateDataFile)
		if err != nil {
			log.Error("load templatedata", "error", err)
			os.Exit(1)
		}
		providers = append(providers, static)
	}
	var tdClient *templatedata.APIClient
	if cfg.TemplateDataAPIURL != "" {
		tdClient = templatedata.NewAPIClient(cfg.TemplateDataAPIURL, cfg.TemplateDataRPS, cfg.TemplateDataTimeout, log)
		providers = append(providers, tdClient)
	}

	var parser normalize.Parser
	var ps *parsoid.Client
	if cfg.ParsoidURL != "" {
		ps = parsoid.NewClient(cfg.ParsoidURL, cfg.ParsoidAPIKey, 30*time.Second, log)
		parser = ps
	}

	m := metrics.New(nil)
	window := metrics.NewLatencyWindow(cfg.StatsWindow)

	// Initialize pipeline.
	conv := pipeline.NewConverter(pipeline.ConverterConfig{
		RTTestMode:     cfg.RTTestMode,
		ScrubBidiChars: cfg.ScrubBidiChars,
	}, providers, parser, m, window, log)
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
		Importer:     importer.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
	}, conv, m, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, m, window, nil, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if tdClient != nil {
			tdClient.Close()
		}
		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting wtselser",
		"port", cfg.Port,
		"parsoid", cfg.ParsoidURL != "",
		"templatedata_providers", len(providers),
		"scrub_wikitext", cfg.ScrubWikitext,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
