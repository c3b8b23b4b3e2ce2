// Command escrowboard runs the escrow task board service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Strob0t/EscrowBoard/internal/config"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configFile string
	overrides  config.Overrides
}

func (f *rootFlags) load() (*config.Config, error) {
	return config.LoadWithOverrides(f.configFile, f.overrides)
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "escrowboard",
		Short:         "Escrowed task board",
		Long:          `escrowboard lets clients post tasks, workers bid on them, and settles the escrowed price on acceptance, rejection, arbitration or expiry.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", config.DefaultConfigFile, "path to the YAML configuration file")
	pf.StringVar(&flags.overrides.Port, "port", "", "HTTP listen port")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.overrides.Backend, "backend", "", "board store backend (memory, postgres)")
	pf.StringVar(&flags.overrides.DSN, "dsn", "", "PostgreSQL connection string")
	pf.StringVar(&flags.overrides.NATSURL, "nats-url", "", "NATS server URL; empty disables streaming")

	root.AddCommand(newServeCmd(flags), newMigrateCmd(flags), newArbiterCmd(flags))
	return root
}
