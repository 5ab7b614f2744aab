package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "msgboard",
		Short: "A datagram message board server and client",
		Long: `msgboard is a small message board over UDP.

Participants join a server, register a unique handle, and then
broadcast to everyone or send direct messages to one handle.

Settings are read from MSGBOARD_* environment variables and an
optional .env file; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serverCmd(),
		clientCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.Red.Render("Error:"), err)
		os.Exit(1)
	}
}
