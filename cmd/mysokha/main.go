package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mysokha/internal/amqp"
	"mysokha/internal/backend"
	"mysokha/internal/cache"
	"mysokha/internal/cli"
	"mysokha/internal/config"
	apphttp "mysokha/internal/http"
	"mysokha/internal/identity"
	"mysokha/internal/live"
	"mysokha/internal/log"
	"mysokha/internal/report"
	"mysokha/internal/report/gsheet"
	"mysokha/internal/services"
	"mysokha/internal/shell"
	"mysokha/internal/worker"
)

const (
	maxSessions      = 10000
	cacheCleanEvery  = time.Minute
	shutdownTimeout  = 30 * time.Second
	reportCacheSize  = 32
	reportCacheTTL   = 10 * time.Minute
	startupLoadLimit = 15 * time.Second
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", log.FieldError, err)
		os.Exit(1)
	}
}

// run serves until a shutdown signal or a server error. Resources opened
// here are closed before it returns.
func run(cfg *config.Config, logger *log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer res.Close()

	hub := live.NewHub(res.Store, backendCfg.Paths, logger)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), startupLoadLimit)
	if err := hub.RefreshAll(loadCtx); err != nil {
		// the UI shows the load error; polling keeps retrying
		logger.Warn("Initial load failed", log.FieldOperation, log.OpStartup, log.FieldError, err)
	}
	cancelLoad()

	origin := uuid.NewString()
	var (
		notifier   services.ChangeNotifier
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("Change notifications disabled, broker unreachable", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			notifier = amqp.NewNotifier(amqpClient, origin)
			logger.Info("Change notifications enabled", "exchange", cfg.AMQPExchange, "origin", origin)
		}
	}

	svc := services.NewExpenseService(res.Store, hub, notifier, cfg.Location(), logger)
	verifier := identity.NewVerifier(cfg.IdentitySecret, cfg.InitialAuthToken, logger)
	caches := cache.NewManager(logger)

	generator := report.NewGenerator(report.Config{
		FontPath:       cfg.ReportFontPath,
		FontFamily:     cfg.ReportFontFamily,
		CurrencySymbol: cfg.CurrencySymbol,
		CacheSize:      reportCacheSize,
		CacheTTL:       reportCacheTTL,
	}, logger)
	if !generator.PDFAvailable() {
		logger.Warn("No report font configured, PDF export is disabled", "font_path", cfg.ReportFontPath)
	}

	deps := apphttp.Deps{
		Service:            svc,
		Sessions:           shell.NewSessions(maxSessions, cfg.SessionTTL, nil),
		Verifier:           verifier,
		Drafts:             res.Slots,
		AppID:              backendCfg.Paths.AppID,
		Reports:            generator,
		Caches:             caches,
		Ready:              res.Ping,
		CurrencySymbol:     cfg.CurrencySymbol,
		SecureCookies:      cfg.SecureCookies,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if cfg.SheetsEnabled() {
		creds, err := gsheet.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
		if err == nil {
			var pub *gsheet.Publisher
			if pub, err = gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, creds, logger); err == nil {
				deps.Sheets = pub
			}
		}
		if err != nil {
			logger.Warn("Google Sheets publishing disabled", log.FieldError, err)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Poll(gctx, cfg.PollInterval)
		return nil
	})
	g.Go(func() error {
		caches.Run(gctx, cacheCleanEvery)
		return nil
	})
	if amqpClient != nil {
		changes := worker.NewChangeWorker(hub, backendCfg.Paths, origin, logger)
		g.Go(func() error {
			if err := changes.Run(gctx, amqpClient); err != nil {
				logger.Error("Change worker stopped", log.FieldError, err)
			}
			return nil
		})
	}

	logger.Info("Starting mysokha server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"app_id", backendCfg.Paths.AppID,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		_ = g.Wait()
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}

	cli.WaitForShutdown(ctx, done)
	_ = g.Wait()
	logger.Info("Server stopped gracefully")
	return nil
}
