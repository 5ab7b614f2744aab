package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/msgboard/config"
	"github.com/cyberinferno/msgboard/logger"
	"github.com/cyberinferno/msgboard/metrics"
	"github.com/cyberinferno/msgboard/server"
)

func serverCmd() *cobra.Command {
	var (
		addr        string
		logLevel    string
		logDir      string
		metricsAddr string
		memberTTL   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the message board server",
		Long: `Run the message board server.

Examples:
  msgboard server
  msgboard server --addr=0.0.0.0:12345 --metrics-addr=:9090
  msgboard server --member-ttl=10m --log-dir=/var/log/msgboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnviron()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-dir") {
				cfg.LogDir = logDir
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("member-ttl") {
				cfg.MemberTTL = memberTTL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "UDP address to listen on (default from MSGBOARD_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Also write daily-rotated log files to this directory")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&memberTTL, "member-ttl", 0, "Remove members silent for this long (0 disables)")

	return cmd
}

func runServer(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	log, err := logger.New(logger.Options{
		Service: "msgboard",
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metrics.DefaultNamespace)
	srv := server.New(server.Options{
		Addr:    cfg.Addr,
		IdleTTL: cfg.MemberTTL,
		Logger:  log,
		Metrics: m,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			log.Info("serving metrics", logger.Field{Key: "addr", Value: cfg.MetricsAddr})
			return m.Serve(ctx, cfg.MetricsAddr)
		})
	}

	err = g.Wait()
	log.Info("server shut down")
	return err
}
