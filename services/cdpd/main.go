package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cdpvault/native/cdp"
	nativecommon "cdpvault/native/common"
	"cdpvault/observability"
	"cdpvault/observability/logging"
	telemetry "cdpvault/observability/otel"
	"cdpvault/services/cdpd/config"
	"cdpvault/services/cdpd/indexer"
	"cdpvault/services/cdpd/keeper"
	"cdpvault/services/cdpd/server"
	"cdpvault/services/cdpd/stream"
	"cdpvault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/cdpd/config.yaml", "path to cdpd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("cdpd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("CDP_ENV"))
	logger, logCloser := logging.SetupWithOptions("cdpd", env, cfg.Logging)
	defer logCloser.Close()

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName = "cdpd"
	telemetryCfg.Environment = env
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		telemetryCfg.Endpoint = endpoint
	}
	if headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		telemetryCfg.Headers = headers
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		log.Fatalf("cdpd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	gen, err := cdp.LoadGenesis(cfg.Genesis)
	if err != nil {
		log.Fatalf("cdpd: load genesis: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		log.Fatalf("cdpd: create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("cdpd: open state: %v", err)
	}
	defer db.Close()
	store := cdp.NewStore(db)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
	if err != nil {
		log.Fatalf("cdpd: open indexer: %v", err)
	}
	defer history.Close()
	indexerDone := make(chan struct{})
	go func() {
		defer close(indexerDone)
		history.Run(rootCtx)
	}()

	metrics := observability.CDP()
	hub := stream.NewHub(logger, metrics)
	hub.AddSink(history)
	if seq, err := history.LastSeq(rootCtx); err != nil {
		log.Fatalf("cdpd: read event history: %v", err)
	} else {
		hub.Resume(seq)
	}

	sys, err := cdp.Deploy(gen, nativecommon.SystemClock{},
		cdp.WithLogger(logger),
		cdp.WithObserver(metrics),
		cdp.WithEmitter(hub),
	)
	if err != nil {
		log.Fatalf("cdpd: deploy: %v", err)
	}
	snap, err := store.Load()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		logger.Info("starting from genesis", "genesis", cfg.Genesis)
	case err != nil:
		log.Fatalf("cdpd: load snapshot: %v", err)
	default:
		if err := sys.Restore(snap); err != nil {
			log.Fatalf("cdpd: restore snapshot: %v", err)
		}
		logger.Info("restored snapshot", "data_dir", cfg.DataDir)
	}

	srv := server.New(server.Config{
		System:  sys,
		Store:   store,
		History: history,
		Hub:     hub,
		Metrics: metrics,
		Auth: server.AuthConfig{
			Secret:    cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			ClockSkew: cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Buffer: cfg.Stream.Buffer,
		Logger: logger,
	})
	srv.Persist()

	if cfg.Keeper.Enabled {
		k := keeper.New(sys, cfg.KeeperAddress(), cfg.Keeper.Interval, logger, func(keeper.Report) { srv.Persist() })
		go k.Run(rootCtx)
	}

	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-rootCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	logger.Info("cdpd listening", "addr", cfg.ListenAddress, "ilks", len(sys.Ilks()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", "error", err)
		stop()
	}

	<-indexerDone
	srv.Persist()
	logger.Info("cdpd stopped")
}
