// Command index-inspect prints the indexes recorded in a store's manifest,
// with per-index statistics, or the atom ids stored under one key.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/config"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/index"
	"github.com/INLOpen/atomindex/indexer"
	"github.com/INLOpen/atomindex/store/leveldb"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		// The report owns stdout.
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})), closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider
// exporting to an OTLP collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("index-inspect")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	timeout := config.ParseDuration(cfg.ShutdownTimeout, 5*time.Second, logger)
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}
	return tp, cleanup, nil
}

// encodeKey turns a command-line key into the bytes the index stores,
// following the key codec recorded for the index.
func encodeKey(d indexer.Descriptor, s string) ([]byte, error) {
	switch d.Codec {
	case fmt.Sprintf("%T", codec.String{}):
		return codec.String{}.Encode(s)
	case fmt.Sprintf("%T", codec.AtomID{}):
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("atom id key: %w", err)
		}
		return codec.AtomID{}.Encode(core.AtomID(n))
	case fmt.Sprintf("%T", codec.Uint64{}):
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("uint64 key: %w", err)
		}
		return codec.Uint64{}.Encode(n)
	case fmt.Sprintf("%T", codec.Int64{}):
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int64 key: %w", err)
		}
		return codec.Int64{}.Encode(n)
	}
	// Anything else is given as hex.
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key for codec %s must be hex: %w", d.Codec, err)
	}
	return b, nil
}

// orderings resolves the ordering of every descriptor. Indexes with custom
// orderings cannot be stored in leveldb and are left out.
func orderings(descs []indexer.Descriptor, logger *slog.Logger) []indexer.StatsTarget {
	targets := make([]indexer.StatsTarget, 0, len(descs))
	for _, d := range descs {
		o, ok := indexer.BuiltinOrdering(d.Ordering)
		if !ok {
			logger.Warn("Skipping index with custom ordering", "indexer", d.String(), "ordering", d.Ordering)
			continue
		}
		targets = append(targets, indexer.StatsTarget{Descriptor: d, Ordering: o})
	}
	return targets
}

func printStats(w io.Writer, stats []indexer.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTYPE\tCODEC\tORDERING\tKEYS\tENTRIES")
	for _, s := range stats {
		d := s.Descriptor
		fmt.Fprintf(tw, "%s(%s)\t%d\t%s\t%s\t%d\t%d\n", d.Kind, d.Policy, uint64(d.Type), d.Codec, d.Ordering, s.Keys, s.Entries)
	}
	return tw.Flush()
}

func run(ctx context.Context, cfg *config.Config, indexName, key string, out io.Writer, logger *slog.Logger) (err error) {
	if cfg.Store.Backend != "leveldb" {
		return fmt.Errorf("store backend %q keeps nothing on disk to inspect", cfg.Store.Backend)
	}
	ctx, span := otel.Tracer("index-inspect").Start(ctx, "inspect")
	defer span.End()

	manifest, err := indexer.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}
	if manifest == nil || len(manifest.Indexes) == 0 {
		return fmt.Errorf("no indexes recorded in %s", cfg.ManifestPath())
	}
	targets := orderings(manifest.Indexes, logger)

	env, err := leveldb.Open(cfg.Store.DataDir, cfg.LevelDBOptions(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); err == nil {
			err = cerr
		}
	}()

	if indexName == "" {
		stats, err := indexer.CollectStats(ctx, env, targets, cfg.Index.StatsConcurrency, logger)
		if err != nil {
			return err
		}
		return printStats(out, stats)
	}

	var target *indexer.StatsTarget
	for i := range targets {
		if targets[i].Descriptor.DatabaseName() == indexName {
			target = &targets[i]
		}
	}
	if target == nil {
		return fmt.Errorf("index %q is not in the manifest", indexName)
	}
	span.SetAttributes(attribute.String("index.name", indexName))
	kb, err := encodeKey(target.Descriptor, key)
	if err != nil {
		return err
	}
	ix, err := index.Open(env, index.Options[[]byte, core.AtomID]{
		Name:       indexName,
		KeyCodec:   codec.Bytes{},
		ValueCodec: codec.AtomID{},
		Ordering:   target.Ordering,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	tx, err := env.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Abort()
	rs, err := ix.Find(tx, kb)
	if err != nil {
		return err
	}
	ids, err := index.CollectIDs(rs)
	if err != nil {
		return err
	}
	it := ids.Iterator()
	for it.HasNext() {
		fmt.Fprintln(out, core.AtomID(it.Next()))
	}
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	indexName := flag.String("index", "", "Database name of the index to query; empty prints statistics for all indexes")
	key := flag.String("key", "", "Key to look up in -index")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	_, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	err = run(context.Background(), cfg, *indexName, *key, os.Stdout, logger)
	tracerCleanup()
	if err != nil {
		logger.Error("Inspection failed", "error", err)
		if logCloser != nil {
			logCloser.Close()
		}
		os.Exit(1)
	}
}
