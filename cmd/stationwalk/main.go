package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"stationwalk.onebusaway.org/internal/app"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/utils"
)

const version = "1.0.0"

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal in production; the environment is used as is.
	_ = godotenv.Load()

	var (
		port       int
		env        string
		logOptions logOptions
	)
	flag.IntVar(&port, "port", 4000, "API server port")
	flag.StringVar(&env, "env", "development", "Environment (development|staging|production)")
	flag.StringVar(&logOptions.file, "log-file", "", "Write logs to this file instead of stdout, with rotation")
	flag.IntVar(&logOptions.maxSizeMB, "log-max-size", 100, "Rotate the log file after this many megabytes")
	flag.IntVar(&logOptions.maxBackups, "log-max-backups", 5, "Number of rotated log files to keep")
	flag.IntVar(&logOptions.maxAgeDays, "log-max-age", 28, "Days to keep rotated log files")
	flag.BoolVar(&logOptions.debug, "debug", false, "Log lookup stage transitions")

	var (
		configFile = flag.String("config-file", "", "Path to a local JSON configuration file")
		configURL  = flag.String("config-url", "", "URL to a remote JSON configuration file")
	)

	flag.Parse()

	if err := config.ValidateConfigFlags(configFile, configURL); err != nil {
		fmt.Println("Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	logger, closeLog := newLogger(logOptions)
	defer closeLog()

	if err := report.SetupSentry(env, version); err != nil {
		logger.Error("Failed to initialize Sentry", "error", err)
	}
	defer report.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configAuthUser := os.Getenv("CONFIG_AUTH_USER")
	configAuthPass := os.Getenv("CONFIG_AUTH_PASS")

	var (
		settings config.Settings
		err      error
	)
	if *configFile != "" {
		settings, err = config.LoadConfigFromFile(*configFile)
	} else {
		client := app.NewPooledClient("config", 30*time.Second)
		settings, err = config.LoadConfigFromURL(ctx, client, *configURL, configAuthUser, configAuthPass, 3)
	}
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		report.FlushSentry()
		os.Exit(1)
	}

	cfg := config.NewConfig(port, env, settings)

	if settings.Facilities.Source == config.SourceGTFS {
		if err := utils.CreateCacheDirectory(settings.Facilities.CacheDir, logger); err != nil {
			logger.Error("Failed to create cache directory", "error", err)
			os.Exit(1)
		}
	}

	application, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{Level: sentry.LevelFatal})
		report.FlushSentry()
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("Failed to close connections", "error", err)
		}
	}()

	if err := application.Start(ctx); err != nil {
		logger.Error("Initial facility load failed; serving without facilities until a refresh succeeds", "error", err)
	}

	if *configURL != "" && settings.RefreshInterval.Std() > 0 {
		go application.ConfigService.RefreshConfig(ctx, *configURL, configAuthUser, configAuthPass, settings.RefreshInterval.Std())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "version", version)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{Level: sentry.LevelFatal})
			logger.Error("Server stopped", "error", err)
			report.FlushSentry()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
