package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sophiahq/sophia/internal/api"
	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/bot"
	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/config"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/platform"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/ratelimit"
	"github.com/sophiahq/sophia/internal/recovery"
	"github.com/sophiahq/sophia/internal/scheduler"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/tracing"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the review and publishing daemon",
	Long: `Run the full service: the HTTP API, the event stream, the publishing
scheduler, the stale-content monitor, and the bot bridge.

Example:
  sophia daemon                   # Listen on the configured address
  sophia daemon --addr :8080      # Listen on port 8080`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("SOPHIA_DEBUG") != "" {
		logPath := os.Getenv("SOPHIA_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
		log.SetEnabled(true)
		log.Info(log.CatConfig, "Sophia daemon starting", "logPath", logPath)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	// Storage.
	st, err := store.Open(cfg.ContentDBPath())
	if err != nil {
		return fmt.Errorf("opening content database: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Event bus.
	bus := pubsub.NewBrokerWithLimits[events.Event](cfg.Events.BufferSize, cfg.Events.MaxSubscribers)
	defer bus.Close()

	// Client read model, cached for scheduling decisions.
	clientRepo := clients.NewCachedRepository(clients.NewSQLRepository(st.DB()), clients.DefaultTTL)

	// Platform adapters.
	adapters := platform.Registry{}
	if cfg.Platforms.Facebook.IsEnabled() {
		adapters[draft.PlatformFacebook] = platform.NewFacebook(cfg.Platforms.Facebook.AccessToken)
	}
	if cfg.Platforms.Instagram.IsEnabled() {
		adapters[draft.PlatformInstagram] = platform.NewInstagram(cfg.Platforms.Instagram.AccessToken)
	}

	// Core services.
	approvalSvc := approval.New(st, bus)
	limiter := ratelimit.New(nil)
	sched, err := scheduler.New(scheduler.Config{
		DBPath:          cfg.SchedulerDBPath(),
		Workers:         cfg.Scheduler.Workers,
		DispatchTimeout: cfg.DispatchTimeout(),
		ImageBaseURL:    cfg.PublicBaseURL(),
	}, st, clientRepo, bus, limiter, adapters, approvalSvc)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	recoverySvc := recovery.New(st, clientRepo, adapters, approvalSvc, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	monitor := scheduler.NewStaleMonitor(st, clientRepo, bus, cfg.StaleThreshold())
	log.SafeGo("stale-monitor", func() { monitor.Run(ctx) })

	// Bot bridge.
	if cfg.Bot.WebhookURL != "" {
		notifier := bot.NewNotifier(bus, st, cfg.Bot.WebhookURL, cfg.Bot.Token)
		log.SafeGo("bot-notifier", func() { notifier.Run(ctx) })
	}
	var botServer *api.Server
	if cfg.Bot.Addr != "" {
		webhook := bot.NewWebhookHandler(bot.WebhookConfig{
			Approval: approvalSvc,
			Recovery: recoverySvc,
			Store:    st,
			Token:    cfg.Bot.Token,
		})
		botServer, err = api.NewRawServer(cfg.Bot.Addr, webhook.Routes())
		if err != nil {
			return fmt.Errorf("creating bot webhook server: %w", err)
		}
		log.SafeGo("bot-webhook", func() {
			if err := botServer.Start(); err != nil {
				log.ErrorErr(log.CatBot, "Bot webhook server stopped", err)
			}
		})
	}

	// HTTP API.
	images, err := api.NewImageStore(cfg.ImageDir())
	if err != nil {
		return fmt.Errorf("creating image store: %w", err)
	}
	handler := api.NewHandler(api.HandlerConfig{
		Approval:  approvalSvc,
		Scheduler: sched,
		Recovery:  recoverySvc,
		Store:     st,
		Clients:   clientRepo,
		Images:    images,
	})
	server, err := api.NewServer(api.ServerConfig{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Sophia daemon started on port %d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(log.CatAPI, "Error stopping API server", "error", err)
	}
	if botServer != nil {
		if err := botServer.Stop(shutdownCtx); err != nil {
			log.Error(log.CatBot, "Error stopping bot webhook server", "error", err)
		}
	}

	cancel()
	sched.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error(log.CatConfig, "Error shutting down tracing", "error", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}
