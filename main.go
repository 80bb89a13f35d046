// entry point of the application
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"audiograb/internal/cli"
	"audiograb/internal/config"
	"audiograb/internal/depmanager"
	"audiograb/internal/downloader"
	"audiograb/internal/extractor"
	"audiograb/internal/history"
	httprouter "audiograb/internal/infrastructure/delivery/http"
	"audiograb/internal/observability"
	"audiograb/internal/proxymgr"
	"audiograb/internal/service"
	"audiograb/internal/storage"
	"audiograb/internal/tagger"
	"audiograb/internal/transcoder"
	httpserver "audiograb/pkg/http/server"
	"audiograb/pkg/logger"

	"github.com/fatih/color"
	"golang.org/x/term"
)

func main() {
	args := cli.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	if args.LogLevel != "" {
		cfg.App.LogLevel = args.LogLevel
	}

	if args.Fetch != nil {
		err = fetch(ctx, cfg, args.Fetch, args.LogLevel)
	} else {
		err = serve(ctx, cfg, args.Serve)
	}

	if err != nil {
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, cmd *cli.ServeCmd) error {
	if cmd.Port != "" {
		cfg.HTTP.Port = cmd.Port
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	metrics := observability.New(nil)

	svc, hist, err := build(ctx, log, cfg, metrics, false)
	if err != nil {
		log.ErrorContext(ctx, "startup failed", slog.Any("error", err))

		return err
	}
	defer hist.Close()

	router := httprouter.New(log, cfg, svc, metrics)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	svc.Start(ctx)

	log.InfoContext(ctx, "audiograb started", slog.String("port", cfg.HTTP.Port), slog.String("version", cli.Version))

	select {
	case <-ctx.Done():
	case err = <-httpSrv.Notify():
		log.ErrorContext(ctx, "http server", slog.Any("error", err))
	}

	if err := httpSrv.Shutdown(); err != nil {
		log.ErrorContext(ctx, "http server shutdown", slog.Any("error", err))
	}

	// The listener failed on its own; workers are left to the process exit.
	if ctx.Err() == nil {
		return err
	}

	svc.Wait()

	log.InfoContext(ctx, "audiograb shut down gracefully")

	return nil
}

func fetch(ctx context.Context, cfg *config.Config, cmd *cli.FetchCmd, level string) error {
	if level == "" {
		level = "warn"
	}

	log, err := logger.New(&logger.Options{
		Level:  level,
		Format: logger.FormatText,
		Output: os.Stderr,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	// The terminal user picks the output directory.
	cfg.Dir.AllowedFolders = nil

	svc, hist, err := build(ctx, log, cfg, nil, cmd.DryRun)
	if err != nil {
		fmt.Fprintln(color.Error, color.RedString("error: %v", err))

		return err
	}
	defer hist.Close()

	tty := term.IsTerminal(int(os.Stdout.Fd()))

	if _, err := cli.Fetch(ctx, svc, cmd, color.Output, tty); err != nil {
		fmt.Fprintln(color.Error, color.RedString("error: %v", err))

		return err
	}

	return nil
}

// build wires the job service. A dry run keeps real extraction and replaces
// downloading, transcoding and tagging with placeholders.
func build(ctx context.Context, log *slog.Logger, cfg *config.Config,
	metrics *observability.Metrics, dryRun bool,
) (service.Job, *history.Store, error) {
	depMgr := depmanager.New(log, cfg.DepManager)

	if dryRun {
		if missing := depMgr.UseExisting(); len(missing) > 0 {
			log.WarnContext(ctx, "dry run does not install binaries", slog.Any("missing", missing))
		}
	} else {
		log.InfoContext(ctx, "checking if yt-dlp, ffmpeg and deno are installed. it may take some time...")

		if err := depMgr.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("dependencies: %w", err)
		}
	}

	var proxyMgr *proxymgr.Manager

	if len(cfg.Proxy.Proxies) > 0 {
		proxyMgr = proxymgr.New(log, cfg.Proxy, metrics)
		go proxyMgr.RunHealthChecker(ctx)

		log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", len(cfg.Proxy.Proxies)))
	}

	ext, err := extractor.New(log, cfg, extractor.Deps{Bins: depMgr, Proxies: proxyMgr, Metrics: metrics})
	if err != nil {
		return nil, nil, err
	}

	hist, err := history.Open(ctx, log, cfg.History)
	if err != nil {
		return nil, nil, err
	}

	deps := service.Deps{
		Storage:   storage.New(ctx, log, cfg, metrics),
		Extractor: ext,
		History:   hist,
		Metrics:   metrics,
	}

	if dryRun {
		deps.Downloader = downloader.NewMock(log)
		deps.Transcoder = transcoder.Copy{}
		deps.Tagger = tagger.Nop{}
	} else {
		deps.Downloader = downloader.NewYTdlp(log, cfg.Download, cfg.Dir,
			downloader.Deps{Bins: depMgr, Proxies: proxyMgr, Metrics: metrics})
		deps.Transcoder = transcoder.New(log, depMgr)
		deps.Tagger = tagger.New(log)
	}

	return service.New(cfg, log, deps), hist, nil
}
