package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"telegram-x-monitor/internal/application"
	"telegram-x-monitor/internal/config"
	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	tele "telegram-x-monitor/internal/infra/adapters/telegram"
	xapi "telegram-x-monitor/internal/infra/adapters/x"
	pg "telegram-x-monitor/internal/infra/db/postgres"
	"telegram-x-monitor/internal/infra/i18n"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/infra/metrics"
	red "telegram-x-monitor/internal/infra/redis"
	"telegram-x-monitor/internal/infra/sched"
	"telegram-x-monitor/internal/infra/scheduler"
	"telegram-x-monitor/internal/infra/web"
	"telegram-x-monitor/internal/infra/worker"
	"telegram-x-monitor/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, secrets unredacted")
	dryRun := flag.Bool("dry-run", false, "log outgoing Telegram messages instead of sending them")
	adminToken := flag.String("admin-token", "", "print an admin API token for this subject and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *adminToken != "" {
		if cfg.Security.AdminJWTSecret == "" {
			logger.Fatal().Msg("security.admin_jwt_secret is not set")
		}
		tok, err := web.NewAuthManager(cfg.Security.AdminJWTSecret, cfg.Security.AdminTokenTTL).Mint(*adminToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Store ----
	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer st.close()

	// ---- Redis (optional) ----
	var (
		redisClient red.RedisClient
		locker      red.Locker
	)
	users := st.users
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		users = pg.NewUserRepoCacheDecorator(st.users, redisClient, cfg.Redis.TTL)
		locker = red.NewLocker(redisClient)
	}

	tr, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLanguage)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Telegram ----
	var (
		bot     adapter.TelegramBotAdapter
		realBot *tele.RealTelegramBotAdapter
	)
	if *dryRun {
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, tr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		if redisClient != nil {
			realBot.SetRateLimiter(red.NewRateLimiter(redisClient))
		}
		bot = realBot
	}

	// ---- X ----
	creds := make([]*model.Credential, 0, len(cfg.X.Credentials))
	for _, c := range cfg.X.Credentials {
		cred, err := model.NewCredential(model.CredentialID(c.ID), c.Token)
		if err != nil {
			logger.Fatal().Err(err).Str("credential", c.ID).Msg("x credential")
		}
		creds = append(creds, cred)
		logger.Info().Str("credential", c.ID).Str("token", logging.Redact(c.Token, cfg.Runtime.Dev)).Msg("x credential loaded")
	}
	xClient := xapi.NewClient(xapi.Options{
		BaseURL:         cfg.X.BaseURL,
		Timeout:         cfg.X.Timeout,
		BreakerFailures: cfg.X.BreakerFailures,
		BreakerCooldown: cfg.X.BreakerCooldown,
	}, logger)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(users, st.requests, st.tm, logger)
	dispatcher := usecase.NewDispatcher(bot, cfg.Monitor.Location(), logger,
		usecase.WithDeliveryConcurrency(cfg.Monitor.DeliveryConcurrency),
		usecase.WithDeliveryRetry(cfg.Monitor.DeliveryRetries, 0),
	)
	monitor := usecase.NewMonitorUseCase(xClient, usecase.NewCredentialRotator(creds...), dispatcher, userUC, usecase.MonitorSettings{
		PollInterval:  cfg.Monitor.PollInterval,
		WarnThreshold: cfg.Monitor.WarnThreshold,
		PageSize:      cfg.Monitor.PageSize,
		InitPageSize:  cfg.Monitor.InitPageSize,
		PauseMin:      cfg.Monitor.PauseMin,
		PauseMax:      cfg.Monitor.PauseMax,
		PauseDefault:  cfg.Monitor.PauseDefault,
		PauseBuffer:   cfg.Monitor.PauseBuffer,
	}, logger)
	accountUC := usecase.NewAccountUseCase(st.accounts, monitor, logger)
	facade := application.NewBotFacade(userUC, accountUC, monitor, dispatcher, tr, logger)

	if err := userUC.EnsureSuperAdmin(ctx, cfg.Bot.SuperAdminID); err != nil {
		logger.Fatal().Err(err).Msg("seed super admin")
	}
	if cfg.Bot.SuperAdminID != 0 {
		if err := bot.SetMenuCommands(ctx, cfg.Bot.SuperAdminID, true); err != nil {
			logger.Warn().Err(err).Msg("failed to set super admin menu")
		}
	}

	// ---- Background workers ----
	pool := worker.NewPool(cfg.Bot.Workers, 0, logger)
	pool.Start(ctx)

	jobs := scheduler.NewScheduler(cfg.Monitor.Location(), time.Minute, logger)
	jobs.Every("db_pool_stats", 30*time.Second, func(context.Context) error {
		st.reportStats()
		return nil
	})
	if spec := cfg.Scheduler.StatusReportCron; spec != "" {
		reporter := sched.NewStatusReporter(facade, userUC, dispatcher, tr, locker, logger)
		if err := jobs.Add("status_report", spec, reporter.Run); err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
	}
	jobs.Start(ctx)

	var auth *web.AuthManager
	if cfg.Security.AdminJWTSecret != "" {
		auth = web.NewAuthManager(cfg.Security.AdminJWTSecret, cfg.Security.AdminTokenTTL)
	}
	server := web.NewServer(web.Deps{
		Monitor:       monitor,
		Accounts:      accountUC,
		Deliverer:     dispatcher,
		Pool:          pool,
		Auth:          auth,
		WebhookSecret: cfg.X.WebhookSecret,
	}, logger)

	// ---- Run ----
	if cfg.Monitor.Autostart {
		started, err := facade.AutoStart(ctx)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("monitoring autostart failed")
		case started:
			logger.Info().Msg("monitoring autostarted")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Admin.Port))
	})
	if realBot != nil {
		g.Go(func() error {
			err := realBot.StartPolling(gctx, facade)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	logger.Info().Str("version", version).Bool("dry_run", *dryRun).Msg("telegram-x-monitor started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	monitor.Stop(shutdownCtx)
	jobs.Stop()
	pool.Stop()
	logger.Info().Msg("bye")
}
