package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cafe/pkg/version"
)

// NewCommand builds the cafe CLI. Running it without a subcommand serves the API.
func NewCommand() *cobra.Command {
	var opts Options

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(opts, os.Getenv)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, cfg, NewLogger(cfg.Log, cmd.ErrOrStderr()))
	}

	root := &cobra.Command{
		Use:           "cafe",
		Short:         "Café storefront and admin engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file path (YAML)")
	root.PersistentFlags().StringVar(&opts.Addr, "addr", "", "Listen address, overrides server.addr and PORT")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront and admin API",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cafe version %s\n", version.Version())
		},
	})
	return root
}
