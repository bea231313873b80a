package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/DBCDK/opencat-business-connector/pkg/config"
	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/metrics"
	"github.com/DBCDK/opencat-business-connector/pkg/observability"
)

var version = "0.1.0"

// globalFlags are shared by every command talking to the service
type globalFlags struct {
	configFile  string
	baseURL     string
	timingLevel string
	maxAttempts int
	retryDelay  time.Duration
	callTimeout time.Duration
	codec       string
	trackingID  string
	logLevel    string
	trace       bool
	metrics     bool
}

// app holds the state of one CLI invocation
type app struct {
	flags    globalFlags
	out      io.Writer
	errOut   io.Writer
	tp       *sdktrace.TracerProvider
	registry *prometheus.Registry
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "opencatctl",
		Short: "opencatctl - command line client for opencat-business",
		Long: `opencatctl calls the opencat-business service from the shell.
Records are read from files in the configured codec (MarcXchange by default);
results are written to stdout as JSON or, for records, in the codec's format.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "YAML configuration file")
	pf.StringVar(&a.flags.baseURL, "url", "", "opencat-business base URL (overrides configuration)")
	pf.StringVar(&a.flags.timingLevel, "timing-level", "", "timing log level: TRACE, DEBUG, INFO, WARN, ERROR")
	pf.IntVar(&a.flags.maxAttempts, "max-attempts", 0, "total attempts per call, 1 disables retries")
	pf.DurationVar(&a.flags.retryDelay, "retry-delay", -1, "fixed delay between attempts")
	pf.DurationVar(&a.flags.callTimeout, "timeout", 0, "overall deadline per call")
	pf.StringVar(&a.flags.codec, "codec", "", "record format: marcxchange or json")
	pf.StringVar(&a.flags.trackingID, "tracking-id", "", "tracking id sent with every request")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&a.flags.trace, "trace", false, "print OpenTelemetry spans to stderr")
	pf.BoolVar(&a.flags.metrics, "metrics", false, "print call metrics to stderr when done")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opencatctl v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(a.configCmd())
	root.AddCommand(a.serveFakeCmd())
	for _, cmd := range a.operationCmds() {
		root.AddCommand(cmd)
	}
	return root
}

// loadConfig reads the configuration file and environment, then applies
// command line overrides.
func (a *app) loadConfig() (*config.ConnectorConfig, error) {
	f := a.flags
	var overrides []config.LoadOption
	set := func(cond bool, key string, value interface{}) {
		if cond {
			overrides = append(overrides, config.WithOverride(key, value))
		}
	}
	set(f.baseURL != "", "base_url", f.baseURL)
	set(f.timingLevel != "", "timing_log_level", f.timingLevel)
	set(f.maxAttempts > 0, "retry.max_attempts", f.maxAttempts)
	set(f.retryDelay >= 0, "retry.delay", f.retryDelay)
	set(f.callTimeout > 0, "http.call_timeout", f.callTimeout)
	set(f.codec != "", "codec", f.codec)
	set(f.logLevel != "", "logging.level", f.logLevel)
	set(f.trace, "observability.enable_tracing", true)
	set(f.metrics, "observability.enable_metrics", true)

	return config.Load(f.configFile, overrides...)
}

// connect builds a connector for one command invocation.
func (a *app) connect() (*connector.Connector, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	lcfg := cfg.LoggerConfig()
	lcfg.Encoding = "console"
	if err := logger.Init(lcfg); err != nil {
		return nil, err
	}

	var opts []connector.Option
	if cfg.Observability.EnableTracing {
		tcfg := observability.DefaultTracingConfig()
		tcfg.Writer = a.errOut
		tcfg.Synchronous = true
		a.tp, err = observability.InitTracing(tcfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, connector.WithTracer(a.tp.Tracer(connector.TracerName)))
	}
	if cfg.Observability.EnableMetrics {
		a.registry = prometheus.NewRegistry()
		opts = append(opts, connector.WithObserver(metrics.NewObserver(a.registry)))
	}
	return connector.NewFromConfig(cfg, logger.Get(), opts...)
}

func (a *app) shutdown(ctx context.Context) error {
	if a.registry != nil {
		if err := writeMetrics(a.errOut, a.registry); err != nil {
			return err
		}
	}
	_ = logger.Sync()
	if ctx == nil {
		ctx = context.Background()
	}
	return observability.Shutdown(ctx, a.tp)
}

func (a *app) callOptions() []connector.CallOption {
	if a.flags.trackingID == "" {
		return nil
	}
	return []connector.CallOption{connector.WithTrackingID(a.flags.trackingID)}
}
