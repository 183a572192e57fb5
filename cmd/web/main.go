package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/config"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/database"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/asaas"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
	apphttp "github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/handlers"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/mailer"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/appointments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/notify"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/storage"
)

func main() {
	// .env is optional; production uses real env vars
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DB.DSN, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	iuguClient := iugu.New(iugu.Config{BaseURL: cfg.Iugu.BaseURL, MasterToken: cfg.Iugu.MasterToken, Timeout: cfg.Gateway.Timeout})
	iuguClient.SetLogger(logger)
	asaasClient := asaas.New(asaas.Config{BaseURL: cfg.Asaas.BaseURL, APIKey: cfg.Asaas.APIKey, Timeout: cfg.Gateway.Timeout})
	asaasClient.SetLogger(logger)

	repo := payments.NewRepo(db)

	creds := payments.NewCredentialResolver(repo, iuguClient, payments.NewTokenCache(cfg.Gateway.TokenCacheTTL, time.Now), cfg.Iugu.Sandbox)
	creds.SetLogger(logger)

	builder := payments.NewInvoiceBuilder(iuguClient, creds, payments.NewSplitPolicy(repo), payments.BuilderConfig{
		WebhookBaseURL:  cfg.Invoice.WebhookBaseURL,
		DueDays:         cfg.Invoice.DueDays,
		PixPollAttempts: cfg.Pix.PollAttempts,
		PixPollDelay:    cfg.Pix.PollDelay,
	})
	builder.SetLogger(logger)

	declines, err := payments.LoadDeclineTable(cfg.Declines.CodesFile)
	if err != nil {
		return err
	}
	charger := payments.NewChargeOrchestrator(iuguClient, creds, builder, declines)
	charger.SetLogger(logger)

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	reconciler := payments.NewReconciler(repo, appointments.NewRepo(db), notifier)
	reconciler.SetLogger(logger)

	tables := payments.DefaultStatusTables()
	webhooks := payments.NewWebhookService(repo, reconciler, tables)
	webhooks.SetLogger(logger)
	poller := payments.NewPoller(repo, iuguClient, asaasClient, creds, tables, reconciler)
	poller.SetLogger(logger)

	images, err := storage.New(ctx, storage.Config{
		Driver:         cfg.Storage.Driver,
		LocalDir:       cfg.Storage.LocalDir,
		LocalURLPrefix: cfg.Storage.URLPrefix,
		S3: storage.S3Config{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		},
	})
	if err != nil {
		return err
	}

	svc := payments.NewService(db, payments.ServiceDeps{
		Builder:    builder,
		Charger:    charger,
		Asaas:      asaasClient,
		Reconciler: reconciler,
		Poller:     poller,
		Images:     images,
		Tables:     tables,
	}, payments.ServiceConfig{DefaultProvider: cfg.Gateway.DefaultProvider, DueDays: cfg.Invoice.DueDays})
	svc.SetLogger(logger)

	refunds := payments.NewRefundService(repo, iuguClient, asaasClient, creds, reconciler)
	refunds.SetLogger(logger)

	router := apphttp.NewRouter(logger, cfg, apphttp.Handlers{
		Webhooks: handlers.NewWebhookHandler(logger, webhooks),
		Payments: handlers.NewPaymentsHandler(logger, svc, poller),
		Admin:    handlers.NewAdminHandler(logger, refunds, creds),
		Health:   &handlers.HealthHandler{DB: sqlDB},
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * cfg.Gateway.Timeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newNotifier always logs; mail and AMQP are added when configured.
func newNotifier(cfg config.Config, logger *slog.Logger) (payments.Notifier, func(), error) {
	multi := notify.Multi{notify.NewLog(logger)}
	closers := []func(){}

	if m := mailer.NewSMTPMailer(cfg.SMTP); m.Configured() {
		multi = append(multi, notify.NewMail(m))
	}
	if cfg.AMQP.URL != "" {
		pub, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, pub)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("amqp close failed", "err", err)
			}
		})
	}
	return multi, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
