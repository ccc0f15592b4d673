// Command helper runs the self-directed agent: the HTTP surface, the
// autonomous consciousness loop, and the shared runtime underneath them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wick-Lim/helper/internal/config"
	"github.com/Wick-Lim/helper/internal/runtime"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/internal/web"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "helper",
		Short: "Self-directed agent runtime",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "helper.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serveCmd(&configPath, &verbose))
	root.AddCommand(configCmd(&configPath))
	return root
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func serveCmd(configPath *string, verbose *bool) *cobra.Command {
	var noConsciousness bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent with its HTTP surface and consciousness loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(*verbose)
			slog.SetDefault(logger)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			rt, err := runtime.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if !noConsciousness {
				go func() {
					if err := rt.StartConsciousness(ctx); err != nil {
						logger.Warn("consciousness driver exited", "error", err)
					}
				}()
			}

			server := web.NewServer(rt, logger)
			serveErr := server.Serve(ctx, cfg.ListenAddr)

			rt.Close(context.Background())
			return serveErr
		},
	}
	cmd.Flags().BoolVar(&noConsciousness, "no-consciousness", false, "disable the autonomous loop")
	return cmd
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change runtime configuration",
	}

	openStore := func() (*store.Store, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return nil, err
		}
		return store.Open(store.Config{
			Path:       cfg.DatabasePath(),
			VectorPath: cfg.VectorPath(),
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Print one key, or all keys when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			keys := store.ConfigKeys()
			if len(args) == 1 {
				keys = []string{args[0]}
			}
			for _, key := range keys {
				value, err := st.GetConfig(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Printf("%s=%s\n", key, value)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.SetConfig(cmd.Context(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a config override, restoring the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.DeleteConfig(cmd.Context(), args[0])
		},
	})

	return cmd
}
