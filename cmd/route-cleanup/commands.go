package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/routeplanner/e2e/cleanup"
	"github.com/routeplanner/e2e/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errUsage = errors.New("no command given")

type rootOptions struct {
	configPath string
	backendURL string
	logLevel   string
}

// app is what every verb needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *cleanup.Client
	cleaner *cleanup.Cleaner
}

func (o *rootOptions) setup() (*app, error) {
	cfg, err := config.LoadBackend(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.backendURL != "" {
		cfg.Backend.BaseURL = o.backendURL
		cfg.Backend.Mode = config.BackendExternal
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	client, err := cleanup.NewClient(cfg.Backend.BaseURL, cleanup.ClientOptions{
		RoutesPath:        cfg.Backend.RoutesPath,
		HTTPClient:        &http.Client{Timeout: cfg.Backend.Timeout},
		BatchSize:         cfg.Cleanup.BatchSize,
		PageSize:          cfg.Cleanup.PageSize,
		RequestsPerSecond: cfg.Cleanup.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		cleaner: cleanup.NewCleaner(nil, client, logger),
	}, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "route-cleanup",
		Short: "Remove routes left behind by e2e test runs",
		Long: `Lists and deletes routes stored in the route planner backend.

  list   print every route
  test   delete routes whose name looks like test data
  all    delete every route`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command %q\n\n", args[0])
				_ = cmd.Usage()
				return fmt.Errorf("unknown command %q", args[0])
			}
			_ = cmd.Usage()
			return errUsage
		},
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "yaml configuration file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&opts.backendURL, "backend-url", "", "backend base URL (default $"+config.EnvBackendURL+" or "+config.DefaultBackendURL+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newListCmd(opts), newAllCmd(opts), newTestCmd(opts))
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every route stored in the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			routes, err := a.client.ListRoutes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d routes at %s\n\n", len(routes), a.client.CollectionURL())
			return printRoutes(cmd.OutOrStdout(), routes, time.Now())
		},
	}
}

func newAllCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Delete every route stored in the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			out := cmd.OutOrStdout()
			routes, err := a.client.ListRoutes(cmd.Context())
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(out, "Would delete all %d routes at %s\n\n", len(routes), a.client.CollectionURL())
				return printRoutes(out, routes, time.Now())
			}

			// Non-interactive: the notice is informational only.
			fmt.Fprintf(out, "Deleting all %d routes at %s\n", len(routes), a.client.CollectionURL())
			result, err := a.cleaner.DeleteAllRoutes(cmd.Context())
			printResult(out, result)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the routes that would be deleted")
	return cmd
}

func newTestCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Delete routes whose name matches a test pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			out := cmd.OutOrStdout()
			if dryRun {
				routes, err := a.client.ListRoutes(cmd.Context())
				if err != nil {
					return err
				}
				matching := cleanup.MatchRoutes(routes, cleanup.TestRoutePatterns...)
				fmt.Fprintf(out, "Would delete %d of %d routes\n\n", len(matching), len(routes))
				return printRoutes(out, matching, time.Now())
			}

			result := a.cleaner.DeleteRoutesByPattern(cmd.Context(), cleanup.TestRoutePatterns...)
			printResult(out, result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the routes that would be deleted")
	return cmd
}

func printRoutes(out io.Writer, routes []cleanup.Route, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWAYPOINTS\tDISTANCE\tDURATION\tAGE\tTEST")
	for _, r := range routes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Name,
			len(r.Waypoints),
			formatDistance(r.Distance),
			formatDuration(r.Duration),
			formatAge(r.CreatedAt, now),
			testMarker(r.Name),
		)
	}
	return w.Flush()
}

func printResult(out io.Writer, result cleanup.Result) {
	fmt.Fprintf(out, "Deleted %d routes, %d failed\n", len(result.Success), len(result.Failed))
	for _, id := range result.Failed {
		fmt.Fprintf(out, "  failed: %s\n", id)
	}
}

func formatDistance(meters float64) string {
	if meters <= 0 {
		return "-"
	}
	return strconv.FormatFloat(meters/1000, 'f', 1, 64) + " km"
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return units.HumanDuration(time.Duration(seconds * float64(time.Second)))
}

func formatAge(createdAt *time.Time, now time.Time) string {
	if createdAt == nil || createdAt.IsZero() {
		return "-"
	}
	return units.HumanDuration(now.Sub(*createdAt)) + " ago"
}

func testMarker(name string) string {
	if cleanup.IsTestRoute(name) {
		return "yes"
	}
	return ""
}
