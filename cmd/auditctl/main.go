// Package main is the compliance and administration CLI for the audit
// trail: query, integrity verification, export, archival, and health.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/onnwee/audittrail/internal/archive"
	"github.com/onnwee/audittrail/internal/audit"
	"github.com/onnwee/audittrail/internal/config"
	"github.com/onnwee/audittrail/internal/health"
	"github.com/onnwee/audittrail/internal/tracing"
)

const usage = `Audit Trail Control

Usage: auditctl <command> [options]

Commands:
  tail      print the current chain tail signature
  query     list events matching filters (newest first)
  verify    run an integrity scan and print the report
  export    serialize a range for compliance handoff
  archive   export a range and upload it to object storage
  health    report operational/degraded status
  types     list the event type taxonomy

Run 'auditctl <command> -help' for command options.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "tail":
		err = runTail(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "archive":
		err = runArchive(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "types":
		err = printJSON(audit.EventTypes())
	case "help", "-help", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// env loads configuration, opens the database, and wires the shared
// components every command needs.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	store  *audit.PostgresStore
	signer *audit.Signer
	tracer *tracing.Provider
}

func setup(configPath string) (*env, error) {
	cfg, errs := config.Load(configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("configuration error", "error", err)
		}
		return nil, fmt.Errorf("invalid configuration")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	signer, err := audit.NewSigner(cfg.AuditSecret)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "audittrail",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return &env{
		cfg:    cfg,
		db:     db,
		store:  audit.NewPostgresStore(db, slog.Default()),
		signer: signer,
		tracer: tracer,
	}, nil
}

func (e *env) close(ctx context.Context) {
	if err := e.tracer.Shutdown(ctx); err != nil {
		slog.Warn("failed to shut down tracing", "error", err)
	}
	if err := e.db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime parses an RFC3339 flag value; empty means unset.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339): %w", value, err)
	}
	return t, nil
}

func runTail(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer e.close(ctx)

	tail, err := e.store.Tail(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"tail": tail})
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	eventType := fs.String("type", "", "filter by event type (e.g. auth.login)")
	severity := fs.String("severity", "", "filter by severity")
	actor := fs.String("actor", "", "filter by actor ID")
	resourceType := fs.String("resource-type", "", "filter by resource type")
	resourceID := fs.String("resource-id", "", "filter by resource ID")
	from := fs.String("from", "", "start of time window (RFC3339, inclusive)")
	to := fs.String("to", "", "end of time window (RFC3339, inclusive)")
	limit := fs.Int("limit", 50, "maximum events to return")
	offset := fs.Int("offset", 0, "events to skip")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer e.close(ctx)

	fromTime, err := parseTime(*from)
	if err != nil {
		return err
	}
	toTime, err := parseTime(*to)
	if err != nil {
		return err
	}

	filter := audit.Filter{
		Severity:     audit.Severity(*severity),
		ActorID:      *actor,
		ResourceType: *resourceType,
		ResourceID:   *resourceID,
		From:         fromTime,
		To:           toTime,
		Limit:        *limit,
		Offset:       *offset,
	}
	if *eventType != "" {
		filter.Types = []audit.EventType{audit.EventType(*eventType)}
	}

	engine, err := audit.NewQueryEngine(e.store, e.cfg.QueryMaxLimit)
	if err != nil {
		return err
	}

	ctx, end := tracing.StartChainSpan(ctx, tracing.ChainOperationQuery)
	events, err := engine.Events(ctx, filter)
	end(err)
	if err != nil {
		return err
	}
	return printJSON(events)
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	from := fs.String("from", "", "start of time window (RFC3339, inclusive)")
	to := fs.String("to", "", "end of time window (RFC3339, inclusive)")
	after := fs.String("after", "", "resume after this event ID")
	limit := fs.Int("limit", 0, "maximum events to scan (0 = all)")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer e.close(ctx)

	fromTime, err := parseTime(*from)
	if err != nil {
		return err
	}
	toTime, err := parseTime(*to)
	if err != nil {
		return err
	}

	verifier, err := audit.NewVerifier(audit.VerifierConfig{
		Store:    e.store,
		Signer:   e.signer,
		Logger:   slog.Default(),
		PageSize: e.cfg.VerifyPageSize,
	})
	if err != nil {
		return err
	}

	ctx, end := tracing.StartChainSpan(ctx, tracing.ChainOperationVerify)
	report, err := verifier.Verify(ctx, audit.VerifyOptions{
		From:    fromTime,
		To:      toTime,
		AfterID: *after,
		Limit:   *limit,
	})
	end(err)
	if err != nil {
		return err
	}

	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("integrity anomalies found: %d invalid signatures, %d broken links",
			len(report.InvalidSignatures), report.BrokenLinks)
	}
	return nil
}

func exportRange(ctx context.Context, e *env, format, from, to, eventType, actor string, limit int) ([]byte, audit.Format, error) {
	fromTime, err := parseTime(from)
	if err != nil {
		return nil, "", err
	}
	toTime, err := parseTime(to)
	if err != nil {
		return nil, "", err
	}

	opts := audit.ExportOptions{
		Format:  audit.Format(format),
		From:    fromTime,
		To:      toTime,
		ActorID: actor,
		Limit:   limit,
	}
	if eventType != "" {
		opts.Types = []audit.EventType{audit.EventType(eventType)}
	}

	exporter, err := audit.NewExporter(e.store, nil)
	if err != nil {
		return nil, "", err
	}

	ctx, end := tracing.StartChainSpan(ctx, tracing.ChainOperationExport)
	data, err := exporter.ExportRange(ctx, opts)
	end(err)
	if err != nil {
		return nil, "", err
	}
	return data, opts.Format, nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	format := fs.String("format", "json", "export format: json, csv, or cbor")
	from := fs.String("from", "", "start of time window (RFC3339, inclusive)")
	to := fs.String("to", "", "end of time window (RFC3339, inclusive)")
	eventType := fs.String("type", "", "filter by event type")
	actor := fs.String("actor", "", "filter by actor ID")
	limit := fs.Int("limit", 0, "maximum events to export (0 = all)")
	out := fs.String("out", "", "output file (default stdout)")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer e.close(ctx)

	data, _, err := exportRange(ctx, e, *format, *from, *to, *eventType, *actor, *limit)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o600)
}

func runArchive(args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	format := fs.String("format", "json", "export format: json, csv, or cbor")
	from := fs.String("from", "", "start of time window (RFC3339, inclusive)")
	to := fs.String("to", "", "end of time window (RFC3339, inclusive)")
	eventType := fs.String("type", "", "filter by event type")
	actor := fs.String("actor", "", "filter by actor ID")
	limit := fs.Int("limit", 0, "maximum events to export (0 = all)")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer e.close(ctx)

	if !e.cfg.ArchiveConfigured() {
		return fmt.Errorf("archive storage is not configured")
	}

	svc, err := archive.NewService(archive.ServiceConfig{
		BucketName:      e.cfg.ArchiveBucketName,
		AccessKeyID:     e.cfg.ArchiveAccessKeyID,
		SecretAccessKey: e.cfg.ArchiveSecretAccessKey,
		Endpoint:        e.cfg.ArchiveEndpoint,
		Prefix:          e.cfg.ArchivePrefix,
	})
	if err != nil {
		return err
	}

	data, fmtParsed, err := exportRange(ctx, e, *format, *from, *to, *eventType, *actor, *limit)
	if err != nil {
		return err
	}

	ctx, end := tracing.StartChainSpan(ctx, tracing.ChainOperationArchive)
	key, err := svc.Store(ctx, archive.Artifact{Data: data, Format: fmtParsed})
	end(err)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"key": key})
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	timeout := fs.Duration("timeout", 5*time.Second, "health check timeout")
	fs.Parse(args)

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	defer e.close(ctx)

	status, failures := health.Evaluate(ctx, map[string]health.Checker{
		"database": health.NewDBChecker(e.db),
		"chain":    health.NewChainChecker(e.store),
		"signer":   health.NewSignerChecker(e.signer),
	})

	result := map[string]any{"status": string(status)}
	if len(failures) > 0 {
		detail := make(map[string]string, len(failures))
		for name, err := range failures {
			detail[name] = err.Error()
		}
		result["failures"] = detail
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if status != health.StatusOperational {
		return fmt.Errorf("audit subsystem is degraded")
	}
	return nil
}
