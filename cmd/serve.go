package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"postfetch/internal/bot"
	"postfetch/internal/metrics"
	"postfetch/internal/retention"
	"postfetch/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Serve connects to Telegram with the configured bot token and answers every
shared post link with its media. It also prunes rate-limit state, sweeps expired
files and, when metrics.addr is set, serves Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is not configured (set BOT_TOKEN or telegram.token)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewProm("postfetch", reg)

	a, err := buildApp(m, true)
	if err != nil {
		return err
	}

	sched := schedule.New(logger)
	if a.limiter != nil {
		err := sched.Every("ratelimit-prune", cfg.RateLimit.PruneInterval.Duration, func() {
			if n := a.limiter.Prune(); n > 0 {
				logger.Debug("pruned rate limit state", zap.Int("users", n))
			}
		})
		if err != nil {
			return err
		}
	}
	sweeper := retention.New(a.store, cfg.Retention.MaxAge.Duration,
		retention.WithInitialDelay(cfg.Retention.InitialDelay.Duration),
		retention.WithLogger(logger),
		retention.WithMetrics(m),
	)
	if err := sweeper.Start(ctx, sched); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = cfg.Debug
	logger.Info("bot started",
		zap.String("username", api.Self.UserName),
		zap.String("downloads", a.store.Dir()),
		zap.Bool("rate_limit", a.limiter != nil),
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	bot.New(api, a.service, logger).Run(ctx, updates)
	logger.Info("bot stopped")
	return nil
}

func startMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
