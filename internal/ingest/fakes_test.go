package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"weatheringest/internal/types"
)

const csvHeader = "Date,Maximum,Minimum,Average,Departure,HDD,CDD,Precipitation,New Snow"

// csvRow renders a data line in csvHeader column order.
func csvRow(date string, max, min, avg, dep float64, hdd, cdd int, precip string, snow float64) string {
	return fmt.Sprintf("%s,%g,%g,%g,%g,%d,%d,%s,%g", date, max, min, avg, dep, hdd, cdd, precip, snow)
}

func csvObject(rows ...string) []byte {
	return []byte(csvHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

type fakeFetcher struct {
	mu   sync.Mutex
	body []byte
	err  error
	refs []types.ObjectRef
}

func (f *fakeFetcher) Fetch(_ context.Context, ref types.ObjectRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	return f.body, f.err
}

// fakeSession records staged observations. Nothing reaches committed until
// Commit succeeds.
type fakeSession struct {
	mu sync.Mutex

	staged    []types.Observation
	committed []types.Observation
	runs      []types.IngestReport

	priorRuns    int
	priorRunsErr error
	// stageErr is consulted for each Stage call with the 0-based call index.
	stageErr   func(call int, obs types.Observation) error
	stageCalls int
	recordErr  error
	commitErr  error

	commits   int
	rollbacks int
	// onStage runs before each Stage, e.g. to cancel the context.
	onStage func(call int)
}

func (s *fakeSession) PriorRuns(_ context.Context, _ types.ObjectRef) (int, error) {
	return s.priorRuns, s.priorRunsErr
}

func (s *fakeSession) Stage(_ context.Context, obs types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.stageCalls
	s.stageCalls++
	if s.onStage != nil {
		s.onStage(call)
	}
	if s.stageErr != nil {
		if err := s.stageErr(call, obs); err != nil {
			return err
		}
	}
	s.staged = append(s.staged, obs)
	return nil
}

func (s *fakeSession) RecordRun(_ context.Context, report types.IngestReport) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.runs = append(s.runs, report)
	return nil
}

func (s *fakeSession) Commit(_ context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	s.committed = append(s.committed, s.staged...)
	return nil
}

func (s *fakeSession) Rollback(_ context.Context) error {
	s.rollbacks++
	return nil
}

type fakeOpener struct {
	session *fakeSession
	err     error
	opens   int
}

func (o *fakeOpener) Open(_ context.Context) (Session, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) PublishIngest(ctx context.Context, report types.IngestReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *mockMetrics) PublishFailure(ctx context.Context, ref types.ObjectRef, code types.ErrorCode) error {
	return m.Called(ctx, ref, code).Error(0)
}

type mockSkips struct {
	mock.Mock
}

func (m *mockSkips) ReportSkipped(ctx context.Context, ref types.ObjectRef, runID string, rows []types.SkippedRow) error {
	return m.Called(ctx, ref, runID, rows).Error(0)
}

// logBuffer captures JSON log output for assertions.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

var errStoreRejected = errors.New(`duplicate key value violates unique constraint "weather_data_record_date_key"`)
