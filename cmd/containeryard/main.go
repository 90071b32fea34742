// Command containeryard runs the container log dashboard service.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"containeryard/internal/config"
	"containeryard/internal/digester"
	"containeryard/internal/digester/fields"
	"containeryard/internal/digester/level"
	"containeryard/internal/ingester"
	ingestdocker "containeryard/internal/ingester/docker"
	ingesttail "containeryard/internal/ingester/tail"
	"containeryard/internal/logging"
	"containeryard/internal/logquery"
	"containeryard/internal/metrics"
	"containeryard/internal/orchestrator"
	"containeryard/internal/server"
	"containeryard/internal/stream"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "containeryard",
		Short: "Container log dashboard service",
	}
	rootCmd.PersistentFlags().String("config", "", "config file path (YAML)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the containeryard service",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			addr, _ := cmd.Flags().GetString("addr")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return serve(ctx, configPath, addr)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address override (host:port)")

	queryCmd := &cobra.Command{
		Use:   "query [query string]",
		Short: "Parse a log query and print its token breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return printQuery(cmd.OutOrStdout(), strings.Join(args, " "), asJSON)
		},
	}
	queryCmd.Flags().Bool("json", false, "print the breakdown as JSON")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, queryCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serve wires config, logging, ingesters, digesters, the hub, the metrics
// sampler, and the HTTP server, then runs until ctx is cancelled.
func serve(ctx context.Context, configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.ListenAddr = addrOverride
	}

	// The base handler passes everything; the filter handler applies the
	// configured level and allows per-component overrides later.
	baseHandler := logging.NewHandler(os.Stderr, cfg.Log.Format, "debug")
	filterHandler := logging.NewComponentFilterHandler(baseHandler, logging.ParseLevel(cfg.Log.Level))
	logger := slog.New(filterHandler)

	logger.Info("starting containeryard", "version", version, "addr", cfg.ListenAddr)

	var ingesters []ingester.Ingester
	if cfg.Docker.Enabled {
		dockerIng, err := ingestdocker.New(ingestdocker.Options{
			Host:         cfg.Docker.Host,
			PollInterval: cfg.Docker.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create docker ingester: %w", err)
		}
		ingesters = append(ingesters, dockerIng)
	}
	if len(cfg.Tail.Globs) > 0 {
		ingesters = append(ingesters, ingesttail.New(ingesttail.Options{
			Globs:        cfg.Tail.Globs,
			PollInterval: cfg.Tail.PollInterval,
			FromStart:    cfg.Tail.FromStart,
			Logger:       logger,
		}))
	}

	hub := stream.NewHub(stream.Config{
		HistorySize: cfg.HistorySize,
		Logger:      logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Ingesters:    ingesters,
		Digesters:    digester.Chain{level.New(), fields.New()},
		Hub:          hub,
		IngestBuffer: cfg.IngestBuffer,
		Logger:       logger,
	})

	sampler, err := metrics.NewSampler(metrics.Config{
		Interval: cfg.MetricsInterval,
		Source:   hub,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:    cfg.ListenAddr,
		Hub:     hub,
		Metrics: sampler,
		Logger:  logger,
	})

	if err := orch.Start(ctx); err != nil {
		return err
	}
	if err := sampler.Start(); err != nil {
		_ = orch.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()

	if stopErr := sampler.Stop(); stopErr != nil {
		logger.Warn("metrics sampler shutdown", "error", stopErr)
	}
	if stopErr := orch.Stop(); stopErr != nil {
		logger.Warn("pipeline shutdown", "error", stopErr)
	}

	logger.Info("containeryard stopped")
	return err
}

// printQuery renders the parsed token breakdown of a query string.
func printQuery(out io.Writer, raw string, asJSON bool) error {
	query := logquery.Parse(raw)

	if asJSON {
		type tokenJSON struct {
			Kind    string `json:"kind"`
			Negated bool   `json:"negated"`
			Label   string `json:"label"`
		}
		tokens := make([]tokenJSON, 0, len(query.Tokens))
		for _, tok := range query.Tokens {
			tokens = append(tokens, tokenJSON{tok.Kind(), tok.IsNegated(), tok.Label()})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"query": raw, "tokens": tokens})
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "query:\t%s\n", query.String())
	fmt.Fprintln(w, "KIND\tNEGATED\tLABEL")
	for _, tok := range query.Tokens {
		fmt.Fprintf(w, "%s\t%t\t%s\n", tok.Kind(), tok.IsNegated(), tok.Label())
	}
	return w.Flush()
}
