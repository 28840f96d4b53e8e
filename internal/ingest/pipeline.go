// Package ingest turns an object-storage notification into committed weather
// observations. The Pipeline fetches the object, parses and classifies each
// data row, stages the valid ones in a single store session and commits
// them atomically. Bad rows are logged and skipped; fetch, decode, session
// and commit failures abort the invocation with nothing committed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"weatheringest/internal/types"
	"weatheringest/internal/weather"
)

// publishTimeout bounds best-effort telemetry sent after the outcome is
// known, including after the invocation deadline has passed.
const publishTimeout = 2 * time.Second

// Config tunes the pipeline.
type Config struct {
	// SourceBucket, when non-empty, is the only bucket accepted.
	SourceBucket string

	// ParseWorkers > 1 parses and classifies rows concurrently. Staging is
	// always sequential in source order.
	ParseWorkers int

	// MaxSkippedInReport caps the skipped-row entries carried in the
	// returned report. The count is never capped.
	MaxSkippedInReport int
}

// Pipeline orchestrates one ingestion per call. It keeps no state between
// calls, so concurrent invocations are independent.
type Pipeline struct {
	Config   Config
	Log      *slog.Logger
	Fetcher  ObjectFetcher
	Sessions SessionOpener

	// Optional sinks.
	Metrics MetricPublisher
	Skips   SkipReporter

	Clock clockwork.Clock
}

// rowResult is the parse/classify outcome of one data line.
type rowResult struct {
	line  int
	text  string
	blank bool
	obs   types.Observation
	err   error
}

// run carries per-invocation state through Process.
type run struct {
	ref     types.ObjectRef
	log     *slog.Logger
	report  types.IngestReport
	skipped []types.SkippedRow
}

// Process ingests the object at ref and returns the committed report.
func (p *Pipeline) Process(ctx context.Context, ref types.ObjectRef) (*types.IngestReport, error) {
	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)

	r := &run{
		ref: ref,
		log: p.logger().With("run_id", runID, "bucket", ref.Bucket, "key", ref.Key),
		report: types.IngestReport{
			RunID:     runID,
			Bucket:    ref.Bucket,
			Key:       ref.Key,
			StartedAt: p.clock().Now().UTC(),
		},
	}

	if err := p.execute(ctx, r); err != nil {
		code := types.CodeOf(err)
		r.log.ErrorContext(ctx, "ingestion failed",
			"error_code", string(code),
			"rows_staged", r.report.RowsInserted,
			"error", err,
		)
		p.publishFailure(ctx, r.log, ref, code)
		return nil, err
	}

	r.log.InfoContext(ctx, "ingestion committed",
		"rows_inserted", r.report.RowsInserted,
		"rows_skipped", r.report.RowsSkipped,
		"duration_ms", r.report.Duration().Milliseconds(),
	)
	p.publishSuccess(ctx, r)

	report := r.report
	return &report, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) error {
	body, err := p.Fetcher.Fetch(ctx, r.ref)
	if err != nil {
		return err
	}
	if !utf8.Valid(body) {
		return types.NewAppError(types.ErrCodeInternalObjectDecode, "object is not valid UTF-8 text", nil)
	}

	lines := weather.SplitLines(string(body))
	var header weather.Header
	if len(lines) > 0 {
		header, err = weather.ParseHeader(lines[0])
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalObjectDecode, "object header is not a delimited line", err)
		}
		if missing := header.Missing(); len(missing) > 0 {
			r.log.WarnContext(ctx, "header is missing expected columns; affected rows will be skipped",
				"missing_columns", missing,
			)
		}
	} else {
		r.log.WarnContext(ctx, "source object is empty")
	}

	sess, err := p.Sessions.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if rbErr := sess.Rollback(rbCtx); rbErr != nil {
			r.log.WarnContext(ctx, "failed to release store session", "error", rbErr)
		}
	}()

	if err := p.checkPriorRuns(ctx, r, sess); err != nil {
		return err
	}

	var results []rowResult
	if len(lines) > 1 {
		results, err = p.evaluate(ctx, header, lines[1:])
		if err != nil {
			return err
		}
	}

	for i, res := range results {
		if ctx.Err() != nil {
			return types.NewAppError(types.ErrCodeInternalTimeout,
				fmt.Sprintf("invocation deadline reached after %d of %d rows", i, len(results)), ctx.Err())
		}
		if res.blank {
			continue
		}
		if res.err != nil {
			p.skip(ctx, r, res, res.err.Error())
			continue
		}
		if err := sess.Stage(ctx, res.obs); err != nil {
			if errors.Is(err, types.ErrSessionAborted) {
				return types.NewAppError(types.ErrCodeInternalDB, "store session aborted while staging rows", err)
			}
			if ctx.Err() != nil {
				return types.NewAppError(types.ErrCodeInternalTimeout, "invocation deadline reached while staging rows", err)
			}
			p.skip(ctx, r, res, "store rejected row: "+err.Error())
			continue
		}
		r.report.RowsInserted++
	}

	r.report.FinishedAt = p.clock().Now().UTC()

	if err := sess.RecordRun(ctx, r.report); err != nil {
		if errors.Is(err, types.ErrSessionAborted) {
			return types.NewAppError(types.ErrCodeInternalDB, "store session aborted while recording run", err)
		}
		r.log.WarnContext(ctx, "failed to record ingest run; observations will still be committed", "error", err)
	}

	return sess.Commit(ctx)
}

func (p *Pipeline) checkPriorRuns(ctx context.Context, r *run, sess Session) error {
	prior, err := sess.PriorRuns(ctx, r.ref)
	if err != nil {
		if errors.Is(err, types.ErrSessionAborted) {
			return types.NewAppError(types.ErrCodeInternalDB, "store session aborted while checking prior runs", err)
		}
		r.log.WarnContext(ctx, "could not check prior ingest runs", "error", err)
		return nil
	}
	if prior > 0 {
		r.log.WarnContext(ctx, "object was ingested before; its rows will be inserted again",
			"prior_runs", prior,
		)
	}
	return nil
}

// evaluate parses and classifies every data line. Results keep source order
// regardless of worker count. Line numbers are 1-based with the header on
// line 1.
func (p *Pipeline) evaluate(ctx context.Context, header weather.Header, lines []string) ([]rowResult, error) {
	results := make([]rowResult, len(lines))
	workers := p.Config.ParseWorkers

	if workers <= 1 {
		for i, text := range lines {
			results[i] = evaluateLine(header, i+2, text)
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range lines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = evaluateLine(header, i+2, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		return nil, types.NewAppError(types.ErrCodeInternalTimeout, "invocation deadline reached while parsing rows", ctx.Err())
	}
	return results, nil
}

func evaluateLine(header weather.Header, line int, text string) rowResult {
	res := rowResult{line: line, text: text}
	if weather.IsBlank(text) {
		res.blank = true
		return res
	}
	raw, err := header.Row(text)
	if err != nil {
		res.err = err
		return res
	}
	res.obs, res.err = weather.Evaluate(raw)
	return res
}

func (p *Pipeline) skip(ctx context.Context, r *run, res rowResult, reason string) {
	r.log.WarnContext(ctx, "skipping row",
		"line", res.line,
		"row", res.text,
		"reason", reason,
	)
	entry := types.SkippedRow{Line: res.line, Row: res.text, Reason: reason}
	r.skipped = append(r.skipped, entry)
	r.report.RowsSkipped++
	if len(r.report.Skipped) < p.Config.MaxSkippedInReport {
		r.report.Skipped = append(r.report.Skipped, entry)
	} else {
		r.report.SkippedTruncated = true
	}
}

func (p *Pipeline) publishSuccess(ctx context.Context, r *run) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if p.Metrics != nil {
		if err := p.Metrics.PublishIngest(pubCtx, r.report); err != nil {
			r.log.WarnContext(ctx, "failed to publish ingest metrics", "error", err)
		}
	}
	if p.Skips != nil && len(r.skipped) > 0 {
		if err := p.Skips.ReportSkipped(pubCtx, r.ref, r.report.RunID, r.skipped); err != nil {
			r.log.WarnContext(ctx, "failed to report skipped rows", "rows", len(r.skipped), "error", err)
		}
	}
}

func (p *Pipeline) publishFailure(ctx context.Context, log *slog.Logger, ref types.ObjectRef, code types.ErrorCode) {
	if p.Metrics == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Metrics.PublishFailure(pubCtx, ref, code); err != nil {
		log.WarnContext(ctx, "failed to publish failure metric", "error", err)
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

func (p *Pipeline) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}
