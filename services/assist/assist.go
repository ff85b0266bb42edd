// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assist wires the Troforte assistant gateway: the chat relay,
// conversation history, plant diagnosis, and the supporting farmer,
// news, and knowledge upload routes.
//
// # Usage
//
//	cfg, err := assist.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := assist.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	log.Fatal(svc.Run(ctx))
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/troforte/assist/services/assist/conversation"
	"github.com/troforte/assist/services/assist/farmers"
	"github.com/troforte/assist/services/assist/handlers"
	"github.com/troforte/assist/services/assist/ingest"
	"github.com/troforte/assist/services/assist/middleware"
	"github.com/troforte/assist/services/assist/news"
	"github.com/troforte/assist/services/assist/objectstore"
	"github.com/troforte/assist/services/assist/objectstore/gcs"
	"github.com/troforte/assist/services/assist/objectstore/s3"
	"github.com/troforte/assist/services/assist/observability"
	"github.com/troforte/assist/services/assist/plantid"
	"github.com/troforte/assist/services/assist/prompt"
	"github.com/troforte/assist/services/assist/relay"
	"github.com/troforte/assist/services/assist/retriever"
	"github.com/troforte/assist/services/assist/retriever/upstash"
	"github.com/troforte/assist/services/assist/retriever/weaviate"
	"github.com/troforte/assist/services/assist/routes"
	"github.com/troforte/assist/services/assist/store"
	badgerstore "github.com/troforte/assist/services/assist/store/badger"
	redisstore "github.com/troforte/assist/services/assist/store/redis"
	"github.com/troforte/assist/services/assist/telemetry"
	"github.com/troforte/assist/services/llm"
)

// ServiceName identifies the process in traces, metrics, and logs.
const ServiceName = "troforte-assist"

// Version is reported as service.version.
var Version = "dev"

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the assist gateway lifecycle.
//
// # Thread Safety
//
// Run is called at most once. Router is safe to call at any time after New.
type Service interface {
	// Run serves HTTP on the configured port until ctx is cancelled, then
	// drains in-flight requests for up to ShutdownTimeout.
	Run(ctx context.Context) error

	// Serve is Run on an existing listener.
	Serve(ctx context.Context, ln net.Listener) error

	// Router returns the configured engine, mainly for tests.
	Router() *gin.Engine

	// Close releases the store, watchers, and telemetry providers.
	Close() error
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config    Config
	router    *gin.Engine
	store     store.Store
	telemetry *telemetry.Telemetry
	watcher   *prompt.Watcher
	closers   []func() error
}

// New builds every component named by cfg and registers the routes.
//
// # Description
//
// Initialization order:
//  1. Prometheus registry and OpenTelemetry providers
//  2. Key-value store (redis or badger)
//  3. Completion client, retriever, and persona source
//  4. Object storage and third-party API clients
//  5. Router, middleware, and routes
//
// A failure after step 2 closes what was already opened.
func New(ctx context.Context, cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &service{config: cfg}
	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init(ctx context.Context) error {
	cfg := s.config

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Registry:       reg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	s.telemetry = tel
	metrics := observability.NewMetrics(reg)

	s.store, err = openStore(ctx, cfg)
	if err != nil {
		return err
	}

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:  cfg.TogetherAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	})
	if err != nil {
		return fmt.Errorf("init completion client: %w", err)
	}

	ret, indexer, err := openRetriever(ctx, cfg)
	if err != nil {
		return err
	}

	var personas prompt.Source = prompt.Static(prompt.DefaultPersonas())
	if cfg.PersonaFile != "" {
		s.watcher, err = prompt.NewWatcher(cfg.PersonaFile, 0)
		if err != nil {
			return fmt.Errorf("load personas: %w", err)
		}
		if err := s.watcher.Start(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Persona hot reload disabled", "path", cfg.PersonaFile, "error", err)
		}
		personas = s.watcher
	}

	uploader, err := s.openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	deps := routes.Dependencies{
		Relay: relay.New(relay.Config{
			Repository:     conversation.NewRepository(s.store),
			Retriever:      ret,
			Personas:       personas,
			Streamer:       relay.LLMStreamer{Client: llmClient},
			Completer:      llmClient,
			Metrics:        metrics,
			PersistTimeout: cfg.PersistTimeout,
		}),
		History: conversation.NewHistory(s.store),
		Plant: handlers.NewPlantHandler(
			plantid.New(plantid.Config{APIKey: cfg.PlantIDAPIKey, BaseURL: cfg.PlantIDBaseURL}),
			uploader,
			conversation.NewAnalyses(s.store),
		),
		Uploader:       uploader,
		Store:          s.store,
		Metrics:        metrics,
		MetricsHandler: tel.MetricsHandler(),
		Limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		}),
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if indexer != nil {
		deps.Ingestor = ingest.New(indexer)
	}
	if cfg.NewsAPIKey != "" {
		deps.News = news.New(news.Config{APIKey: cfg.NewsAPIKey, BaseURL: cfg.NewsBaseURL})
	} else {
		slog.Info("APITUBE_API_KEY not set, news route disabled")
	}
	if cfg.AirtableAPIKey != "" && cfg.AirtableBaseID != "" {
		airtable, err := farmers.NewAirtable(farmers.AirtableConfig{
			APIKey: cfg.AirtableAPIKey,
			BaseID: cfg.AirtableBaseID,
		})
		if err != nil {
			return fmt.Errorf("init airtable: %w", err)
		}
		deps.Farmers = farmers.NewService(airtable)
	} else {
		slog.Info("Airtable not configured, user and farmer routes disabled")
	}

	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.CORS(),
		otelgin.Middleware(ServiceName),
	)
	routes.SetupRoutes(s.router, deps)
	return nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case StoreBadger:
		bcfg := badgerstore.DefaultConfig(cfg.BadgerPath)
		if cfg.BadgerMemory {
			bcfg = badgerstore.InMemoryConfig()
		}
		bcfg.Logger = slog.Default().With("component", "badger")
		st, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		slog.Info("Using badger store", "path", bcfg.Path, "in_memory", bcfg.InMemory)
		return st, nil
	default:
		st, err := redisstore.New(ctx, redisstore.Config{URL: cfg.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, nil
	}
}

// openRetriever returns the context retriever and, when the backend
// supports writes, the indexer used by knowledge uploads.
func openRetriever(ctx context.Context, cfg Config) (retriever.Retriever, retriever.Indexer, error) {
	switch cfg.RetrieverBackend {
	case RetrieverUpstash:
		c, err := upstash.New(upstash.Config{URL: cfg.UpstashVectorURL, Token: cfg.UpstashToken})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case RetrieverWeaviate:
		c, err := weaviate.New(weaviate.Config{URL: cfg.WeaviateURL, ClassName: cfg.WeaviateClass})
		if err != nil {
			return nil, nil, err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.EnsureSchema(schemaCtx); err != nil {
			slog.Warn("Weaviate schema check failed", "error", err)
		}
		return c, c, nil
	default:
		slog.Warn("No retriever configured, answers will not be grounded")
		return retriever.Static(""), nil, nil
	}
}

func (s *service) openObjectStore(ctx context.Context, cfg Config) (objectstore.Uploader, error) {
	switch cfg.ObjectStoreBackend {
	case ObjectStoreS3:
		u, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 object store: %w", err)
		}
		return u, nil
	case ObjectStoreGCS:
		c, err := gcs.NewClient(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("init gcs object store: %w", err)
		}
		s.closers = append(s.closers, c.Close)
		return c, nil
	default:
		slog.Info("No object store configured, images are not kept and uploads are disabled")
		return nil, nil
	}
}

// =============================================================================
// Service Interface Methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

func (s *service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting assist server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down assist server", "timeout", s.config.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Close() error {
	var errs []error
	if s.watcher != nil {
		s.watcher.Stop()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		s.telemetry = nil
	}
	return errors.Join(errs...)
}

var _ Service = (*service)(nil)
