// Package cmd defines the CLI commands for the citypop executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/app"
	"github.com/JakeFAU/citypop-crawler/internal/config"
	"github.com/JakeFAU/citypop-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey    appKeyType = "app"
	holderKey appKeyType = "holder"
)

// appHolder carries the App built by the root command back to runRoot so it
// is closed even when the subcommand fails.
type appHolder struct {
	app *app.App
}

// newApp is the application factory; tests swap it out.
var newApp = app.New

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "citypop",
		Short: "Builds a spreadsheet of the largest cities per country.",
		Long: `citypop scrapes city population tables from public web pages, falling
back through several sources per country, and writes a spreadsheet grouped
by country. Run it once with "generate" or as an HTTP service with "serve".`,
		SilenceUsage: true,

		// Runs before the subcommand: load config and build the services.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if holder, ok := cmd.Context().Value(holderKey).(*appHolder); ok {
				holder.app = appInstance
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CITYPOP_* env vars override it")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newGenerateCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// runRoot executes root and then closes the services it built, whether or
// not the subcommand returned an error.
func runRoot(ctx context.Context, root *cobra.Command) error {
	holder := &appHolder{}
	err := root.ExecuteContext(context.WithValue(ctx, holderKey, holder))
	holder.app.Close()
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := runRoot(context.Background(), newRootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "citypop: %v\n", err)
		os.Exit(1)
	}
}
