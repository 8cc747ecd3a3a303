package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	apihttp "btd/internal/api/http"
	"btd/internal/api/rpc"
	"btd/internal/app"
	"btd/internal/domain"
	"btd/internal/metrics"
	"btd/internal/services/torrent/actor"
	"btd/internal/services/torrent/engine/anacrolix"
	"btd/internal/telemetry"
	"btd/internal/usecase"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "btd:", err)
		os.Exit(1)
	}
}

type options struct {
	debug      bool
	configPath string
	adminAddr  string
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "btd",
		Short:         "Torrent daemon driven by framed JSON requests on stdin",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := applyFlags(app.LoadConfig(), opts, cmd.Flags().Changed("admin-addr"))
			return run(cmd.Context(), cfg, opts.configPath)
		},
	}
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "force debug logging")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "engine config file; starts the engine at boot")
	cmd.Flags().StringVar(&opts.adminAddr, "admin-addr", "", "admin HTTP listen address (overrides BTD_ADMIN_ADDR)")
	return cmd
}

func applyFlags(cfg app.Config, opts options, adminAddrSet bool) app.Config {
	if opts.debug {
		cfg.LogLevel = "debug"
	}
	if adminAddrSet {
		cfg.AdminAddr = strings.TrimSpace(opts.adminAddr)
	}
	return cfg
}

func run(parent context.Context, cfg app.Config, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, closeLog := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(parent, telemetry.OptionsFromEnv("btd", version))
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "btd"),
		slog.String("version", version),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("adminAddr", cfg.AdminAddr),
		slog.String("dataDir", cfg.DataDir),
		slog.Int64("maxFrameBytes", cfg.MaxFrameBytes),
		slog.Int64("minFreeBytes", cfg.MinFreeBytes),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var admin *apihttp.Server
	core := actor.New(anacrolix.Factory(cfg.DataDir, logger),
		actor.WithLogger(logger),
		actor.WithConfigLoader(app.LoadEngineConfig),
		actor.WithAlertSink(func(alert domain.Alert) {
			if admin != nil {
				admin.BroadcastAlert(alert)
			}
		}),
	)
	defer core.Shutdown()

	if cfg.AdminAddr != "" {
		admin = apihttp.NewServer(core, apihttp.WithLogger(logger))
	}

	if configPath != "" {
		if err := core.Start(ctx, configPath); err != nil {
			logger.Error("engine start at boot failed", slog.String("config", configPath), slog.String("error", err.Error()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if admin != nil {
		g.Go(func() error {
			return admin.Run(gctx, cfg.AdminAddr)
		})
	}
	g.Go(func() error {
		updateEngineMetrics(gctx, core, admin)
		return nil
	})
	if cfg.MinFreeBytes > 0 {
		guard := usecase.DiskPressure{
			Torrents:     core,
			Logger:       logger,
			DataDir:      cfg.DataDir,
			MinFreeBytes: cfg.MinFreeBytes,
			ResumeBytes:  cfg.ResumeFreeBytes,
		}
		g.Go(func() error {
			guard.Run(gctx)
			return nil
		})
	}

	server := rpc.NewServer(core,
		rpc.WithLogger(logger),
		rpc.WithMaxFrameSize(cfg.MaxFrameBytes),
		rpc.WithVersion(version),
	)
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(gctx)
	}()

	var runErr error
	select {
	case runErr = <-served:
	case <-gctx.Done():
		logger.Info("shutdown signal received")
	}

	stop()
	core.Shutdown()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	logger.Info("btd stopped")
	return runErr
}

// updateEngineMetrics refreshes the transfer gauges and pushes a status
// snapshot to websocket clients while the engine runs.
func updateEngineMetrics(ctx context.Context, core *actor.Actor, admin *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if core.State() != actor.StateRunning {
				continue
			}
			ids, err := core.List(ctx)
			if err != nil {
				continue
			}
			var dlTotal, ulTotal, peersTotal int64
			statuses := make(map[domain.TorrentID]domain.TorrentStatus, len(ids))
			for _, id := range ids {
				st, err := core.Status(ctx, id)
				if err != nil {
					continue
				}
				dlTotal += st.DownloadRate
				ulTotal += st.UploadRate
				peersTotal += int64(st.NumPeers)
				statuses[id] = st
			}
			metrics.DownloadSpeedBytes.Set(float64(dlTotal))
			metrics.UploadSpeedBytes.Set(float64(ulTotal))
			metrics.PeersConnected.Set(float64(peersTotal))
			if admin != nil {
				admin.BroadcastStatuses(statuses)
			}
		}
	}
}

// newLogger writes to stderr, or to a rotating file when file is set.
// stdout carries RPC frames and must stay clean.
func newLogger(levelRaw, formatRaw, file string) (*slog.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if file = strings.TrimSpace(file); file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = rotating
		closeFn = func() { _ = rotating.Close() }
	}

	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(out, options)), closeFn
	}
	return slog.New(slog.NewTextHandler(out, options)), closeFn
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
