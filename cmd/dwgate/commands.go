package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/TFMV/dwgate/cmd/dwgate/server"
	gwerrors "github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/converter"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/registry"
	"github.com/TFMV/dwgate/pkg/services"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools",
		Long: `Open every configured instance and serve the MCP tools.

Example:
  dwgate serve
  dwgate serve --transport http --http-address 0.0.0.0:8080 --metrics
  dwgate serve --config ./dwgate.yaml --env-file ./prod.env`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	gw, err := a.buildGateway(true)
	if err != nil {
		return err
	}
	logger := gw.logger
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("transport", gw.cfg.Transport).
		Msg("Starting dwgate")

	if gw.metricsServer != nil {
		go func() {
			logger.Info().Str("address", gw.cfg.Metrics.Address).Msg("Starting metrics server")
			if err := gw.metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statuses := gw.server.Warmup(ctx)
	a.printBanner(gw, statuses)

	serveErr := gw.server.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info().Msg("Received shutdown signal")
	}

	logger.Info().Dur("timeout", gw.cfg.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gw.cfg.ShutdownTimeout)
	defer cancel()

	if err := gw.server.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}
	if gw.metricsServer != nil {
		if err := gw.metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Server shutdown complete")
	return serveErr
}

// printBanner writes the instance inventory to stderr so it never mixes with
// the stdio transport.
func (a *app) printBanner(gw *gateway, statuses []server.InstanceStatus) {
	failed := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if !st.Open {
			failed[st.ID] = st.Error
		}
	}

	pterm.DefaultSection.WithWriter(a.errOut).Printfln("dwgate %s", version)
	if gw.envFile != "" {
		pterm.Fprintln(a.errOut, "Env file: "+gw.envFile)
	}
	for _, fix := range gw.server.LoadResult().Fixes {
		pterm.Fprintln(a.errOut, "Auto-fixed: "+fix)
	}

	groups := registry.Inventory(gw.server.Registry())
	if len(groups) == 0 {
		pterm.Fprintln(a.errOut, services.NoPlatformsMessage)
		return
	}

	data := [][]string{{"Group", "Instance", "Kind", "Target", "Status"}}
	for _, group := range groups {
		for _, item := range group.Items {
			status := "open"
			switch {
			case !item.Loaded:
				status = "skipped: " + item.Reason
			case failed[item.ID] != "":
				status = "unavailable: " + failed[item.ID]
			case !item.Open:
				status = "configured"
			}
			data = append(data, []string{group.Prefix, item.ID, item.Kind.String(), item.Target, status})
		}
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(a.errOut).Render(); err != nil {
		gw.logger.Warn().Err(err).Msg("Failed to render instance table")
	}
}

// withGateway builds a gateway for a one-shot command and closes it afterwards.
func (a *app) withGateway(cmd *cobra.Command, fn func(ctx context.Context, gw *gateway) error) error {
	gw, err := a.buildGateway(false)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), gw.cfg.ShutdownTimeout)
		defer cancel()
		_ = gw.server.Close(ctx)
	}()
	return fn(cmd.Context(), gw)
}

func (a *app) printJSON(v any) error {
	out, err := converter.FormatJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, out)
	return nil
}

func (a *app) platformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List configured instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				listing, err := gw.server.Service().ListPlatforms(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(listing)
			})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <platform>",
		Short: "Describe a platform kind or configured instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				info, err := gw.server.Service().GetPlatformInfo(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printJSON(info)
			})
		},
	}
}

func (a *app) queryCmd() *cobra.Command {
	var (
		limit            int
		allowDestructive bool
		asJSON           bool
	)
	cmd := &cobra.Command{
		Use:   "query <platform> <sql>",
		Short: "Run one statement against an instance",
		Long: `Run one statement against an instance through the same safety gate as
the execute_query tool.

Example:
  dwgate query mysql "SELECT * FROM orders"
  dwgate query holo_hk_chatbi --limit 20 "SELECT * FROM dim_city"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &models.QueryRequest{
				Instance:         args[0],
				Query:            strings.Join(args[1:], " "),
				Limit:            limit,
				AllowDestructive: allowDestructive,
			}
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				result, err := gw.server.Service().ExecuteQuery(ctx, req)
				if err != nil {
					if rej, ok := gwerrors.AsRejection(err); ok {
						return fmt.Errorf("statement rejected (%s): %s", rej.Reason, rej.Message)
					}
					return err
				}
				if asJSON {
					return a.printJSON(result)
				}
				fmt.Fprintln(a.out, converter.FormatResult(result))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "LIMIT for unbounded reads (default: --default-limit)")
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "allow statements that modify data or schema")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var allowDestructive bool
	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Classify a statement without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				result, err := gw.server.Service().ValidateQuery(ctx, strings.Join(args, " "), allowDestructive)
				if err != nil {
					return err
				}
				if err := a.printJSON(result); err != nil {
					return err
				}
				if !result.Valid {
					return fmt.Errorf("statement rejected: %s", result.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "validate as if destructive statements were allowed")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <platform> [schema]",
		Short: "Introspect tables and columns of an instance",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var schema string
			if len(args) == 2 {
				schema = args[1]
			}
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				info, err := gw.server.Service().GetSchemaInfo(ctx, args[0], schema)
				if err != nil {
					return err
				}
				return a.printJSON(info)
			})
		},
	}
}

func (a *app) examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples <platform>",
		Short: "Show example queries for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				listing, err := gw.server.Service().GetExampleQueries(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printJSON(listing)
			})
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open every configured instance and report the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGateway(cmd, func(ctx context.Context, gw *gateway) error {
				statuses := gw.server.Warmup(ctx)

				data := [][]string{{"Instance", "Status", "Took", "Error"}}
				var failed int
				for _, st := range statuses {
					status := "ok"
					if !st.Open {
						status = "failed"
						failed++
					}
					data = append(data, []string{st.ID, status, st.Took.Round(time.Millisecond).String(), st.Error})
				}
				for _, s := range gw.server.LoadResult().Skipped {
					data = append(data, []string{s.ID, "skipped", "", s.Reason})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(a.out).Render(); err != nil {
					return err
				}

				if failed > 0 {
					return fmt.Errorf("%d of %d instances unavailable", failed, len(statuses))
				}
				return nil
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	})
	return cmd
}
