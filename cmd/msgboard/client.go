package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cyberinferno/msgboard/client"
	"github.com/cyberinferno/msgboard/config"
	"github.com/cyberinferno/msgboard/logger"
)

func clientCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the interactive message board client",
		Long: `Run the interactive message board client.

Type /? for the list of commands. Start with:
  /join <server_ip_add> <port>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnviron()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("no-color") {
				cfg.NoColor = noColor
			}

			return runClient(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runClient(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	if cfg.NoColor {
		color.Disable()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}

	// Diagnostics go to stderr so they never interleave with chat output, and
	// follow the chat's color setting.
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05", NoColor: cfg.NoColor}
	log := logger.NewZerologLogger(zerolog.New(console), "msgboard-client", level)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(client.Options{
		In:             os.Stdin,
		Out:            os.Stdout,
		Log:            log,
		NoColor:        cfg.NoColor,
		ReceiveTimeout: cfg.ReceiveTimeout,
	})
	if err != nil {
		return err
	}

	return c.Run(ctx)
}
