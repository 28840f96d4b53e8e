package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"weatheringest/internal/types"
)

type mockCloudWatch struct {
	mock.Mock
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*cloudwatch.PutMetricDataOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*sqs.SendMessageBatchOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func datumByName(data []cwTypes.MetricDatum, name string) *cwTypes.MetricDatum {
	for i := range data {
		if aws.ToString(data[i].MetricName) == name {
			return &data[i]
		}
	}
	return nil
}

func TestMetricPublisher_PublishIngest(t *testing.T) {
	cw := new(mockCloudWatch)
	p := NewMetricPublisher(cw, "WeatherIngest")
	start := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	report := types.IngestReport{
		Bucket:       "weather-drop",
		RowsInserted: 9,
		RowsSkipped:  1,
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
	}

	var captured *cloudwatch.PutMetricDataInput
	cw.On("PutMetricData", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*cloudwatch.PutMetricDataInput) }).
		Return(&cloudwatch.PutMetricDataOutput{}, nil)

	require.NoError(t, p.PublishIngest(context.Background(), report))
	require.NotNil(t, captured)
	assert.Equal(t, "WeatherIngest", aws.ToString(captured.Namespace))
	require.Len(t, captured.MetricData, 3)

	inserted := datumByName(captured.MetricData, MetricRowsInserted)
	require.NotNil(t, inserted)
	assert.Equal(t, 9.0, aws.ToFloat64(inserted.Value))
	assert.Equal(t, "weather-drop", aws.ToString(inserted.Dimensions[0].Value))

	duration := datumByName(captured.MetricData, MetricIngestDurationMs)
	require.NotNil(t, duration)
	assert.Equal(t, 1500.0, aws.ToFloat64(duration.Value))
	assert.Equal(t, cwTypes.StandardUnitMilliseconds, duration.Unit)
}

func TestMetricPublisher_PublishFailure(t *testing.T) {
	cw := new(mockCloudWatch)
	p := NewMetricPublisher(cw, "WeatherIngest")

	cw.On("PutMetricData", mock.Anything, mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		d := in.MetricData[0]
		return aws.ToString(d.MetricName) == MetricIngestFailures &&
			len(d.Dimensions) == 2 &&
			aws.ToString(d.Dimensions[0].Value) == "unknown" &&
			aws.ToString(d.Dimensions[1].Value) == "validation_invalid_payload"
	})).Return(&cloudwatch.PutMetricDataOutput{}, nil)

	err := p.PublishFailure(context.Background(), types.ObjectRef{}, types.ErrCodeValidationInvalidPayload)
	require.NoError(t, err)
	cw.AssertExpectations(t)
}

func TestMetricPublisher_Error(t *testing.T) {
	cw := new(mockCloudWatch)
	p := NewMetricPublisher(cw, "WeatherIngest")
	cw.On("PutMetricData", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	assert.Error(t, p.PublishIngest(context.Background(), types.IngestReport{}))
	assert.Error(t, p.PublishFailure(context.Background(), types.ObjectRef{}, types.ErrCodeInternalDB))
}

func skippedRows(n int) []types.SkippedRow {
	rows := make([]types.SkippedRow, n)
	for i := range rows {
		rows[i] = types.SkippedRow{Line: i + 2, Row: fmt.Sprintf("bad,%d", i), Reason: "column missing"}
	}
	return rows
}

func TestSkipQueue_BatchesOfTen(t *testing.T) {
	q := new(mockSQS)
	sq := NewSkipQueue(q, "https://sqs.us-east-1.amazonaws.com/123/skipped")
	ref := types.ObjectRef{Bucket: "weather-drop", Key: "jan.csv"}

	var sizes []int
	var first SkippedRowMessage
	q.On("SendMessageBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(*sqs.SendMessageBatchInput)
			if len(sizes) == 0 {
				_ = json.Unmarshal([]byte(aws.ToString(in.Entries[0].MessageBody)), &first)
			}
			sizes = append(sizes, len(in.Entries))
		}).
		Return(&sqs.SendMessageBatchOutput{}, nil)

	require.NoError(t, sq.ReportSkipped(context.Background(), ref, "run-1", skippedRows(23)))
	assert.Equal(t, []int{10, 10, 3}, sizes)
	assert.Equal(t, SkippedRowMessage{
		RunID: "run-1", Bucket: "weather-drop", Key: "jan.csv",
		Line: 2, Row: "bad,0", Reason: "column missing",
	}, first)
}

func TestSkipQueue_PartialFailure(t *testing.T) {
	q := new(mockSQS)
	sq := NewSkipQueue(q, "https://sqs.us-east-1.amazonaws.com/123/skipped")

	q.On("SendMessageBatch", mock.Anything, mock.Anything).Return(&sqs.SendMessageBatchOutput{
		Failed: []sqsTypes.BatchResultErrorEntry{
			{Id: aws.String("line-2"), Code: aws.String("InternalError"), Message: aws.String("boom")},
		},
	}, nil)

	err := sq.ReportSkipped(context.Background(), types.ObjectRef{}, "run-1", skippedRows(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalError")
}

func TestSkipQueue_CancelledContext(t *testing.T) {
	q := new(mockSQS)
	sq := NewSkipQueue(q, "https://sqs.us-east-1.amazonaws.com/123/skipped")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sq.ReportSkipped(ctx, types.ObjectRef{}, "run-1", skippedRows(3))
	assert.ErrorIs(t, err, context.Canceled)
	q.AssertNotCalled(t, "SendMessageBatch", mock.Anything, mock.Anything)
}
