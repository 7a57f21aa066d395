// Package main provides the entry point for the dwgate data warehouse gateway.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/dwgate/cmd/dwgate/config"
	"github.com/TFMV/dwgate/cmd/dwgate/server"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/registry"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// app carries what every command needs: bound flags, output streams and the
// process environment.
type app struct {
	v       *viper.Viper
	out     io.Writer
	errOut  io.Writer
	environ func() []string
}

func main() {
	a := &app{
		v:       viper.New(),
		out:     os.Stdout,
		errOut:  os.Stderr,
		environ: os.Environ,
	}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dwgate",
		Short: "dwgate data warehouse gateway",
		Long: `A safety-gated query gateway for MaxCompute, Hologres, MySQL, PolarDB and Redshift.

dwgate exposes configured warehouse instances to MCP clients as tools,
blocking destructive statements unless a caller explicitly allows them.
Instances are read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("env-file", "", ".env file with instance variables (default: search from the working directory)")
	flags.String("transport", config.TransportStdio, "MCP transport (stdio, http)")
	flags.String("http-address", "127.0.0.1:8080", "listen address for the http transport")
	flags.Int("default-limit", 100, "LIMIT appended to unbounded reads")
	flags.Int("max-rows", 10000, "maximum rows read from any result")
	flags.Duration("query-timeout", 5*time.Minute, "per-query timeout")
	flags.Duration("connect-timeout", 30*time.Second, "timeout for opening an instance")
	flags.Duration("liveness-interval", 30*time.Second, "minimum interval between liveness pings")
	flags.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	flags.Bool("metrics", false, "enable Prometheus metrics")
	flags.String("metrics-address", ":9090", "metrics server address")
	flags.Bool("health", false, "enable the gRPC health service")
	flags.String("health-address", ":9091", "gRPC health service address")

	// Bind flags to viper
	if err := a.v.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	a.v.SetEnvPrefix("DWGATE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.serveCmd(),
		a.platformsCmd(),
		a.infoCmd(),
		a.queryCmd(),
		a.validateCmd(),
		a.schemaCmd(),
		a.examplesCmd(),
		a.checkCmd(),
		a.configCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "dwgate data warehouse gateway\n")
				fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", commit)
				fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", buildDate)
			},
		},
	)
	return root
}

// loadConfig starts from the config file, or the defaults, and overlays any
// flag or DWGATE_* variable that was explicitly set.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := func(key string, apply func()) {
		if a.v.IsSet(key) {
			apply()
		}
	}
	set("log-level", func() { cfg.LogLevel = a.v.GetString("log-level") })
	set("env-file", func() { cfg.EnvFile = a.v.GetString("env-file") })
	set("transport", func() { cfg.Transport = a.v.GetString("transport") })
	set("http-address", func() { cfg.HTTPAddress = a.v.GetString("http-address") })
	set("default-limit", func() { cfg.DefaultLimit = a.v.GetInt("default-limit") })
	set("max-rows", func() { cfg.MaxRows = a.v.GetInt("max-rows") })
	set("query-timeout", func() { cfg.QueryTimeout = a.v.GetDuration("query-timeout") })
	set("connect-timeout", func() { cfg.ConnectTimeout = a.v.GetDuration("connect-timeout") })
	set("liveness-interval", func() { cfg.LivenessInterval = a.v.GetDuration("liveness-interval") })
	set("shutdown-timeout", func() { cfg.ShutdownTimeout = a.v.GetDuration("shutdown-timeout") })
	set("metrics", func() { cfg.Metrics.Enabled = a.v.GetBool("metrics") })
	set("metrics-address", func() { cfg.Metrics.Address = a.v.GetString("metrics-address") })
	set("health", func() { cfg.Health.Enabled = a.v.GetBool("health") })
	set("health-address", func() { cfg.Health.Address = a.v.GetString("health-address") })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging writes JSON logs to w. Stdout is reserved for the stdio
// transport and command output, so main passes stderr.
func setupLogging(level string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "dwgate")

	if logLevel == zerolog.DebugLevel {
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			if i := strings.LastIndexByte(file, '/'); i >= 0 {
				file = file[i+1:]
			}
			return fmt.Sprintf("%s:%d", file, line)
		}
		logger = logger.Caller()
	}

	return logger.Logger()
}

// gateway is a built server plus the pieces serve needs to shut down.
type gateway struct {
	cfg           *config.Config
	logger        zerolog.Logger
	server        *server.Server
	metricsServer *metrics.MetricsServer
	envFile       string
}

// buildGateway loads configuration and the .env file, then builds the server.
// Metrics are only collected when serving.
func (a *app) buildGateway(withMetrics bool) (*gateway, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, a.errOut)

	envFile, err := registry.LoadDotEnv(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	if envFile != "" {
		logger.Debug().Str("path", envFile).Msg("Loaded env file")
	}

	gw := &gateway{cfg: cfg, logger: logger, envFile: envFile}

	collector := metrics.NewNoOpCollector()
	if withMetrics && cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewPrometheusCollector(reg)
		gw.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, reg)
	}

	gw.server, err = server.New(cfg, a.environ(), logger, collector,
		server.WithImplementation("dwgate", version))
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return gw, nil
}
