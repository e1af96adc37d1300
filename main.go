package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"scan-relay/bot"
	"scan-relay/config"
	"scan-relay/internal/decoder"
	"scan-relay/internal/delivery"
	"scan-relay/internal/handlers"
	"scan-relay/internal/logger"
	"scan-relay/internal/metrics"
	"scan-relay/internal/repository"
	"scan-relay/internal/scan"
	"scan-relay/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	settings, err := config.NewSettingsStore(cfg.SettingsFile, config.DefaultSettings(cfg))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load settings")
	}
	if settings.GetEndpointURL() == "" {
		logrus.Warn("scan endpoint not configured; deliveries will fail until it is set")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	// Create application context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service, closers := initApplication(cfg, settings)
	for _, c := range closers {
		defer c.Close()
	}
	go service.Run(ctx)

	// Initialize Telegram Bot
	if cfg.TelegramBotToken != "" {
		if err := initBot(ctx, cfg, service, settings); err != nil {
			logrus.WithError(err).Warn("failed to init telegram bot")
		}
	}

	if cfg.ScannerDevice != "" {
		startLineReader(ctx, cfg.ScannerDevice, service)
	}

	// Setup HTTP server
	router := handlers.NewRouter(
		handlers.NewScanHandler(service),
		handlers.NewSettingsHandler(settings),
		promhttp.Handler(),
	)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.HTTPAddr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logrus.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown error")
	}

	logrus.Info("server stopped gracefully")
}

// initApplication builds the scan pipeline and its optional mirrors
func initApplication(cfg *config.Config, settings *config.SettingsStore) (*services.ScanService, []io.Closer) {
	dispatcher := delivery.NewDispatcher(settings, delivery.WithTimeout(cfg.DeliveryTimeout))

	opts := []services.Option{services.WithNotifier(bot.NewNotifier())}
	var closers []io.Closer

	if cfg.PocketBaseURL != "" {
		history := repository.NewPocketBaseScanHistoryRepository(cfg.PocketBaseURL, cfg.PocketBaseToken)
		opts = append(opts, services.WithHistory(history))
		bot.SetArchive(history)
		logrus.WithField("url", cfg.PocketBaseURL).Info("scan history mirrored to pocketbase")
	}

	if len(cfg.KafkaBrokers) > 0 {
		feed := repository.NewKafkaScanFeed(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, services.WithFeed(feed))
		closers = append(closers, feed)
		logrus.WithFields(logrus.Fields{
			"brokers": cfg.KafkaBrokers,
			"topic":   cfg.KafkaTopic,
		}).Info("scan events published to kafka")
	}

	service := services.NewScanService(
		scan.NewDeduplicator(cfg.DedupWindow),
		scan.NewStore(),
		dispatcher,
		settings,
		opts...,
	)
	return service, closers
}

// initBot initializes the Telegram bot
func initBot(ctx context.Context, cfg *config.Config, service *services.ScanService, settings *config.SettingsStore) error {
	if err := bot.Init(cfg.TelegramBotToken, cfg.AuthorizedChatID); err != nil {
		return err
	}

	bot.SetScanSource(service)
	bot.SetSettingsSource(settings)
	bot.StartPolling(ctx)

	logrus.Info("telegram bot initialized")
	return nil
}

// startLineReader feeds a line-oriented scanner device into the pipeline
func startLineReader(ctx context.Context, device string, service *services.ScanService) {
	var r io.ReadCloser = os.Stdin
	if device != "-" {
		f, err := os.Open(device)
		if err != nil {
			logrus.WithError(err).WithField("device", device).Error("failed to open scanner device")
			return
		}
		r = f
	}

	reader := decoder.NewLineReader(r, func(code string) {
		event, err := service.Submit(ctx, code, "")
		if err != nil {
			logrus.WithError(err).WithField("code", code).Debug("decode not accepted")
			return
		}
		logrus.WithField("event_id", event.ID).Debug("decode submitted")
	})

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	go func() {
		if err := reader.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("scanner device read failed")
		}
		logrus.WithField("device", device).Info("scanner device reader stopped")
	}()
}
