// Package main is the entry point for the commerce backend. It loads
// configuration, opens storage, starts the in-process event bus with its
// consumers and the TTL sweeper, wires the HTTP/WebSocket transport, and
// shuts everything down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/config"
	"github.com/ndgaspar/go-commerce-backend/internal/consumers"
	httpapi "github.com/ndgaspar/go-commerce-backend/internal/http"
	"github.com/ndgaspar/go-commerce-backend/internal/observability"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
	"github.com/ndgaspar/go-commerce-backend/internal/sysutil"
	"github.com/ndgaspar/go-commerce-backend/internal/ws"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Str("version", version).Logger()

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			logger.Fatal().Err(err).Msg("database tracing setup failed")
		}
	}

	store, err := storage.NewFSStore(cfg.Invoice.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Invoice.UploadDir).Msg("object store setup failed")
	}

	// Messaging: bus + dead-letter sink, then the application services that
	// publish into it.
	dead := &consumers.DeadLetterStore{DB: db, Log: logger}
	b := bus.New(cfg.Bus.BufferSize, dead, logger)

	events := &services.EventService{
		DB:              db,
		EventTTL:        cfg.EventTTL,
		InvoiceEventTTL: cfg.InvoiceEventTTL,
		Log:             logger,
	}
	products := &services.ProductService{DB: db, Bus: b, Log: logger}
	orders := &services.OrderService{DB: db, Bus: b, Log: logger}

	// The gateway and the invoice workflow reference each other: the gateway
	// routes getUploadUrl to the workflow, the workflow pushes through the
	// gateway. Construct the gateway first and bind the issuer after.
	gateway := ws.NewGateway(nil, logger)
	invoices := &services.InvoiceService{
		DB:             db,
		Store:          store,
		Conns:          gateway,
		Bus:            b,
		Log:            logger,
		UploadBaseURL:  cfg.Invoice.UploadBaseURL,
		UploadExpiry:   cfg.Invoice.UploadExpiry,
		TransactionTTL: cfg.Invoice.TransactionTTL,
	}
	gateway.Issuer = invoices

	sender := &consumers.LogEmailSender{Log: logger}
	processor := &consumers.LogPaymentProcessor{Log: logger}
	if err := consumers.RegisterAll(b, cfg.Bus, events, sender, processor, logger); err != nil {
		logger.Fatal().Err(err).Msg("consumer registration failed")
	}

	sweeper := &services.Sweeper{DB: db, Invoices: invoices, Interval: cfg.SweepInterval, Log: logger}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweeper.Run(sweepCtx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Products: products,
		Orders:   orders,
		Events:   events,
		Invoices: invoices,
		Store:    store,
		WS:       gateway,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	stopSweeper()
	gateway.Close()
	b.Close()
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown error")
	}
	logger.Info().Msg("stopped")
}
