// Package cmd defines the ycrawler command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/app"
	"github.com/JakeFAU/ycrawler/internal/config"
	"github.com/JakeFAU/ycrawler/internal/logging"
)

// Runner is what the root command drives. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context) error
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"once":          "crawler.once",
	"interval":      "crawler.poll_interval",
	"max-requests":  "crawler.max_requests",
	"base-url":      "crawler.base_url",
	"ledger-policy": "crawler.ledger_policy",
	"admin-port":    "server.port",
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ycrawler <output-dir>",
		Short: "Polls the newest stories and archives each article with its linked pages.",
		Long: `ycrawler polls the newest listing of a Hacker News style site, and for every
story it has not seen before stores the article plus every external link from
the discussion thread under <output-dir>/<story-id>/.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			for flag, key := range flagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
			v.Set("storage.output_dir", args[0])

			cfg, err := config.LoadFromViper(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a config file (yaml, json or toml)")
	flags.Bool("once", false, "run a single cycle and exit")
	flags.Duration("interval", 0, "delay between cycles (default 5s)")
	flags.Int("max-requests", 0, "maximum concurrent requests (default 5)")
	flags.String("base-url", "", "base URL of the site (default https://news.ycombinator.com)")
	flags.String("ledger-policy", "", "when to mark stories seen: always or on_success")
	flags.Int("admin-port", 0, "serve the admin API on this port (0 disables it)")

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := zap.NewProduction()
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
