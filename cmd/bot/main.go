package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"feedwatch/internal/bot"
	"feedwatch/internal/checker"
	"feedwatch/internal/config"
	"feedwatch/internal/dispatch"
	"feedwatch/internal/fetcher"
	"feedwatch/internal/ratelimit"
	"feedwatch/internal/scheduler"
	"feedwatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.BotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.FeedTimeout)

	dispatcher := dispatch.New(b, dispatch.NewWebhookClient(http.DefaultClient), cfg.SendRatePerSec, log)
	chk := checker.New(store, f, ratelimit.New(store), dispatcher, b, log)
	b.AttachChecker(chk)

	sched := scheduler.New(chk, store, cfg.CheckInterval, cfg.RetentionDays, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting feedwatch", "check_interval", cfg.CheckInterval)

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	b.Run(ctx)

	if sched.Stop(cfg.ShutdownTimeout) {
		log.Info("feedwatch stopped")
	} else {
		log.Warn("feedwatch stopped before the running cycle finished")
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
