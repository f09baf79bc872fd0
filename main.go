package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type cliOptions struct {
	configPath string
	cfg        *Config
	logger     *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "ide-mcp-proxy",
		Short:         "MCP proxy that forwards tool calls to a running JetBrains IDE",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, nil)
			if err != nil {
				return err
			}
			applyFlagBindings(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(bool(cfg.LogEnabled), cfg.LogLevel)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath(), "path to the JSON config file")
	pf.Int("ide-port", 0, "probe only this IDE port instead of scanning")
	pf.String("host", defaultHost, "host the IDE listens on")
	pf.Int("scan-base-port", defaultScanBasePort, "first port of the IDE scan")
	pf.Int("scan-port-count", defaultScanPortCount, "number of ports to scan")
	pf.Duration("probe-timeout", defaultProbeTimeout, "timeout of a single health probe")
	pf.Duration("call-timeout", 0, "timeout of a single tool call, 0 for none")
	pf.Bool("log-enabled", false, "write logs to stderr")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("tool-overrides", "", "path to a tool overrides JSON file")

	serveFlags(root.Flags())
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the proxy over stdio or streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, opts)
		},
	}
	serveFlags(serve.Flags())

	root.AddCommand(
		serve,
		newToolsCommand(opts),
		newCallCommand(opts),
		newResolveCommand(opts),
		newSnapshotCommand(opts),
	)
	return root
}

func serveFlags(flags *pflag.FlagSet) {
	flags.String("transport", transportStdio, "transport to serve: stdio or http")
	flags.String("http-host", defaultHTTPHost, "listen host for the http transport")
	flags.Int("http-port", defaultHTTPPort, "listen port for the http transport")
	flags.Duration("refresh-interval", defaultRefreshInterval, "interval between endpoint checks")
	flags.Int("evict-after-failures", 0, "clear the cached endpoint after this many failed checks, 0 never")
	flags.StringSlice("auth-token", nil, "bearer token accepted by the http transport (repeatable)")
	flags.StringSlice("allowed-origin", nil, "CORS origin allowed by the http transport (repeatable)")
	flags.String("catalog-snapshot", "", "persist the advertised catalog to this path")
	flags.Int("catalog-snapshot-history", 0, "number of timestamped catalog snapshots to keep")
}

// applyFlagBindings copies only flags the user set, so they override the
// file and environment without resetting them to flag defaults.
func applyFlagBindings(flags *pflag.FlagSet, cfg *Config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "ide-port":
			cfg.IDEPort, _ = flags.GetInt("ide-port")
		case "host":
			cfg.Host, _ = flags.GetString("host")
		case "scan-base-port":
			cfg.ScanBasePort, _ = flags.GetInt("scan-base-port")
		case "scan-port-count":
			cfg.ScanPortCount, _ = flags.GetInt("scan-port-count")
		case "probe-timeout":
			d, _ := flags.GetDuration("probe-timeout")
			cfg.ProbeTimeout = duration(d)
		case "call-timeout":
			d, _ := flags.GetDuration("call-timeout")
			cfg.CallTimeout = duration(d)
		case "log-enabled":
			v, _ := flags.GetBool("log-enabled")
			cfg.LogEnabled = switchFlag(v)
		case "log-level":
			cfg.LogLevel, _ = flags.GetString("log-level")
		case "tool-overrides":
			cfg.ToolOverridesPath, _ = flags.GetString("tool-overrides")
		case "transport":
			cfg.Transport, _ = flags.GetString("transport")
		case "http-host":
			cfg.HTTPHost, _ = flags.GetString("http-host")
		case "http-port":
			cfg.HTTPPort, _ = flags.GetInt("http-port")
		case "refresh-interval":
			d, _ := flags.GetDuration("refresh-interval")
			cfg.RefreshInterval = duration(d)
		case "evict-after-failures":
			cfg.EvictAfterFailures, _ = flags.GetInt("evict-after-failures")
		case "auth-token":
			cfg.AuthTokens, _ = flags.GetStringSlice("auth-token")
		case "allowed-origin":
			cfg.AllowedOrigins, _ = flags.GetStringSlice("allowed-origin")
		case "catalog-snapshot":
			cfg.CatalogSnapshotPath, _ = flags.GetString("catalog-snapshot")
		case "catalog-snapshot-history":
			cfg.CatalogSnapshotHistory, _ = flags.GetInt("catalog-snapshot-history")
		}
	})
}

// proxyApp is the wired process: one endpoint slot, one scheduler, one MCP
// server shared by whichever transport runs.
type proxyApp struct {
	cfg       *Config
	logger    *zap.Logger
	metrics   *proxyMetrics
	state     *endpointState
	scheduler *Scheduler
	core      *proxyCore
	server    *server.MCPServer
	registry  *toolRegistry
}

func newProxyApp(cfg *Config, logger *zap.Logger) (*proxyApp, error) {
	overrides, err := loadToolOverridesFromPath(cfg.ToolOverridesPath)
	if err != nil {
		return nil, fmt.Errorf("load tool overrides: %w", err)
	}

	metrics := newProxyMetrics()
	state := newEndpointState()
	client := &http.Client{}

	prober := newHTTPProber(client, cfg.ProbeTimeout.Duration(), logger.Named("probe"), metrics)
	resolver := newResolver(prober, state, resolverOptions{
		Host:      cfg.Host,
		BasePort:  cfg.ScanBasePort,
		PortCount: cfg.ScanPortCount,
	}, logger.Named("resolver"), metrics)

	calls := newToolCallProxy(client, cfg.CallTimeout.Duration(), logger.Named("calls"), metrics)
	core := newProxyCore(state, client, calls, logger.Named("core"))

	srv := newMCPServer(logger.Named("mcp"), state)
	snapshots := newCatalogSnapshotWriter(cfg.CatalogSnapshotPath, cfg.CatalogSnapshotHistory, logger.Named("snapshots"))
	registry := newToolRegistry(srv, core, overrides, snapshots, logger.Named("registry"))

	scheduler := newScheduler(resolver, state, registry, schedulerOptions{
		ExplicitPort: cfg.IDEPort,
		Interval:     cfg.RefreshInterval.Duration(),
		EvictAfter:   cfg.EvictAfterFailures,
	}, logger.Named("scheduler"), metrics)

	return &proxyApp{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		state:     state,
		scheduler: scheduler,
		core:      core,
		server:    srv,
		registry:  registry,
	}, nil
}

func runServeCommand(cmd *cobra.Command, opts *cliOptions) error {
	app, err := newProxyApp(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	ctx, cancel := signalAwareContext(cmd.Context())
	defer cancel()
	return app.serve(ctx)
}

// serve resolves once before any transport accepts requests, then runs the
// scheduler and the transport until either stops.
func (a *proxyApp) serve(ctx context.Context) error {
	if err := a.scheduler.Refresh(ctx); err != nil {
		a.logger.Warn("failed to update IDE endpoint", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		switch a.cfg.Transport {
		case transportHTTP:
			handler, _ := newHTTPHandler(a.server, a.registry, a.state, a.metrics, httpOptions{
				AuthTokens:     a.cfg.AuthTokens,
				AllowedOrigins: a.cfg.AllowedOrigins,
			}, a.logger.Named("http"))
			return runHTTP(gctx, a.cfg.httpAddr(), handler, a.logger.Named("http"))
		default:
			return runStdio(gctx, a.server, os.Stdin, os.Stdout, a.logger)
		}
	})
	return g.Wait()
}

// resolveOnce is the one-shot path used by the inspection commands.
func resolveOnce(cmd *cobra.Command, opts *cliOptions) (*proxyApp, context.Context, context.CancelFunc, error) {
	app, err := newProxyApp(opts.cfg, opts.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signalAwareContext(cmd.Context())
	if err := app.scheduler.Refresh(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return app, ctx, cancel, nil
}

func newToolsCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the IDE currently exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, ctx, cancel, err := resolveOnce(cmd, opts)
			if err != nil {
				return err
			}
			defer cancel()
			tools, err := app.core.ListTools(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tools)
		},
	}
}

var errToolReportedFailure = errors.New("tool reported an error")

func newCallCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Invoke one IDE tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}
			app, ctx, cancel, err := resolveOnce(cmd, opts)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := app.core.CallTool(ctx, args[0], arguments)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if res.IsError {
				return errToolReportedFailure
			}
			return nil
		},
	}
}

func newResolveCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Find a working IDE endpoint and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, cancel, err := resolveOnce(cmd, opts)
			if err != nil {
				return err
			}
			defer cancel()
			ep, ok := app.state.Endpoint()
			if !ok {
				return ErrNoEndpointAvailable
			}
			fmt.Fprintln(cmd.OutOrStdout(), ep.String())
			return nil
		},
	}
}

func newSnapshotCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the tool names of the last persisted catalog snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.CatalogSnapshotPath == "" {
				return errors.New("no catalog snapshot path configured")
			}
			_, path := resolveStatePath(opts.cfg.CatalogSnapshotPath)
			generated, names, err := loadCatalogSnapshot(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !generated.IsZero() {
				fmt.Fprintf(out, "# generated %s\n", generated.Format(time.RFC3339))
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().String("catalog-snapshot", "", "path of the persisted catalog")
	return cmd
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
