package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/llmretry/audit"
	"github.com/aschepis/backscratcher/llmretry/config"
	"github.com/aschepis/backscratcher/llmretry/llm"
	llmlogger "github.com/aschepis/backscratcher/llmretry/logger"
	"github.com/aschepis/backscratcher/llmretry/metrics"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		model      = flag.String("model", "", "Primary model as provider/name (overrides config)")
		fallbacks  = flag.String("fallbacks", "", "Comma-separated fallback models (overrides config)")
		system     = flag.String("system", "", "System prompt")
		stream     = flag.Bool("stream", false, "Stream the response")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		showStats  = flag.Bool("stats", false, "Print audit log summary and exit")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *fallbacks != "" {
		cfg.Fallbacks = splitList(*fallbacks)
	}
	if *logFile == "" && cfg.Log.File != "" {
		*logFile = cfg.Log.File
	}
	if !*pretty && *logFile == "" {
		*pretty = cfg.Log.Pretty
	}

	logger, closer, err := llmlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close() //nolint:errcheck // No remedy for log close errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *audit.Store
	if cfg.Audit.Enabled || *showStats {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o700); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
		store, err = audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer store.Close() //nolint:errcheck // No remedy for db close errors
	}

	if *showStats {
		return printStats(ctx, os.Stdout, store)
	}

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		return fmt.Errorf("usage: llmretry [flags] <prompt>")
	}

	opts, err := cfg.ModelOptions()
	if err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}
	opts = append(opts,
		retry.WithResolver(config.NewRegistry(cfg, logger)),
		retry.WithLogger(logger),
	)
	if store != nil {
		opts = append(opts, retry.WithObserver(store))
	}
	if cfg.Metrics.Listen != "" {
		recorder := metrics.NewPrometheusRecorder()
		opts = append(opts, retry.WithObserver(recorder))
		srv := serveMetrics(cfg.Metrics.Listen, recorder, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rm, err := retry.ModelByID(cfg.Model, opts...)
	if err != nil {
		return fmt.Errorf("failed to build model %q: %w", cfg.Model, err)
	}

	logger.Info().
		Str("model", rm.ModelID()).
		Strs("fallbacks", cfg.Fallbacks).
		Bool("stream", *stream).
		Msg("llmretry starting")

	prompt, err := retry.NewPrompt(llm.TextPrompt(*system, text))
	if err != nil {
		return err
	}

	var failures []retry.Failure
	var used llm.Model
	if *stream {
		s, err := prompt.Stream(ctx, rm.AsModel(), nil)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck // Close after completion is a no-op
		for {
			chunk, err := s.NextChunk(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, retry.ErrStreamRestarted) {
				fmt.Fprintln(os.Stdout)
				fmt.Fprintf(os.Stderr, "[restarting: %v]\n", err)
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, chunk.TextDelta())
		}
		fmt.Fprintln(os.Stdout)
		failures, used = s.RetryFailures(), s.Model()
	} else {
		resp, err := prompt.Call(ctx, rm.AsModel(), nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, resp.Text())
		failures, used = resp.RetryFailures(), resp.Model()
	}

	for _, f := range failures {
		logger.Warn().Str("model", f.Model.ModelID()).Err(f.Err).Msg("Attempt failed before success")
	}
	logger.Info().Str("model", used.ModelID()).Int("failures", len(failures)).Msg("Completed")
	return nil
}

func serveMetrics(addr string, recorder *metrics.PrometheusRecorder, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

func printStats(ctx context.Context, w io.Writer, store *audit.Store) error {
	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	outcomes := lo.Keys(summary)
	slices.Sort(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "%-10s %d\n", outcome, summary[outcome])
	}
	recent, err := store.RecentFailures(ctx, 10)
	if err != nil {
		return err
	}
	for _, r := range recent {
		fmt.Fprintf(w, "%s  %-40s attempt=%d %s: %s\n", r.CreatedAt.Format(time.RFC3339), r.ModelID, r.Attempt, r.ErrorType, r.Error)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
