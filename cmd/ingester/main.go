// Package main is the entrypoint for the weather ingestion Lambda.
//
// The function is triggered by S3 ObjectCreated events on the source bucket
// (or invoked directly with {"bucket": "...", "key": "..."}). Cold start wires
// configuration, the database pool, the S3 fetcher and the optional metric
// and skipped-row sinks; all ingestion logic lives in internal/ingest.
//
// With APP_ENV=local the event is read from stdin instead of the Lambda
// runtime, and the weather table is created if missing:
//
//	echo '{"bucket":"weather-raw","key":"2024/jan.csv"}' | go run ./cmd/ingester
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jonboulle/clockwork"

	"weatheringest/internal/config"
	"weatheringest/internal/db"
	"weatheringest/internal/ingest"
	"weatheringest/internal/objectstore"
	"weatheringest/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel).With(
		"service", cfg.Service,
		"environment", cfg.Environment,
	)
	logger.Info("ingester initializing (cold start)",
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"table", cfg.Database.Table,
		"dedupe_by_date", cfg.Ingest.DedupeByDate,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Environment == "local" {
		if err := db.EnsureSchema(ctx, pool, cfg.Database.Table, cfg.Ingest.DedupeByDate); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}

	p := newPipeline(cfg, logger, awsCfg, db.NewSessionFactory(pool, cfg.Database, cfg.Ingest.DedupeByDate, logger))

	logger.Info("ingester initialized",
		"source_bucket", cfg.AWS.SourceBucket,
		"parse_workers", cfg.Ingest.ParseWorkers,
		"metrics_enabled", p.Metrics != nil,
		"skip_queue_enabled", p.Skips != nil,
	)

	if cfg.Environment == "local" {
		return runLocal(ctx, p, os.Stdin, os.Stdout, logger)
	}

	lambda.Start(p.Handler)
	return nil
}

// newPipeline wires the ingestion pipeline from configuration. Optional
// sinks stay nil interfaces when disabled.
func newPipeline(cfg *config.Config, logger *slog.Logger, awsCfg aws.Config, sessions *db.SessionFactory) *ingest.Pipeline {
	endpoint := cfg.AWS.EndpointURL

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	p := &ingest.Pipeline{
		Config: ingest.Config{
			SourceBucket:       cfg.AWS.SourceBucket,
			ParseWorkers:       cfg.Ingest.ParseWorkers,
			MaxSkippedInReport: cfg.Ingest.MaxSkippedInReport,
		},
		Log:     logger,
		Fetcher: objectstore.NewS3Fetcher(s3Client, cfg.Ingest.MaxObjectBytes, logger),
		Sessions: ingest.SessionOpenerFunc(func(ctx context.Context) (ingest.Session, error) {
			sess, err := sessions.Open(ctx)
			if err != nil {
				// Return an untyped nil so callers never see a nil *db.Session
				// inside a non-nil interface.
				return nil, err
			}
			return sess, nil
		}),
		Clock: clockwork.NewRealClock(),
	}

	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		p.Metrics = telemetry.NewMetricPublisher(cw, cfg.Observability.MetricNamespace)
	}

	if cfg.AWS.SkippedRowsQueue != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		p.Skips = telemetry.NewSkipQueue(sqsClient, cfg.AWS.SkippedRowsQueue)
	}

	return p
}

// runLocal feeds one event from in through the same handler the Lambda
// runtime uses and prints the report to out.
func runLocal(ctx context.Context, p *ingest.Pipeline, in io.Reader, out io.Writer, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading event from stdin")

	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return errors.New("no input received on stdin")
	}

	report, err := p.Handler(ctx, json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("handler execution failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
