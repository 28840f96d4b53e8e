// Package telemetry publishes ingestion outcomes to AWS: metrics to
// CloudWatch and skipped rows to SQS. Both are best effort; callers log
// and ignore their errors.
package telemetry

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"weatheringest/internal/types"
)

// Metric names.
const (
	MetricRowsInserted     = "RowsInserted"
	MetricRowsSkipped      = "RowsSkipped"
	MetricIngestDurationMs = "IngestDurationMs"
	MetricIngestFailures   = "IngestFailures"
)

// CloudWatchAPI is the subset of the CloudWatch SDK client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricPublisher writes ingestion metrics under one namespace, dimensioned
// by source bucket.
type MetricPublisher struct {
	client    CloudWatchAPI
	namespace string
}

// NewMetricPublisher creates a MetricPublisher.
func NewMetricPublisher(client CloudWatchAPI, namespace string) *MetricPublisher {
	return &MetricPublisher{client: client, namespace: namespace}
}

// PublishIngest emits row counts and duration for a committed run.
func (p *MetricPublisher) PublishIngest(ctx context.Context, report types.IngestReport) error {
	dims := []cwTypes.Dimension{bucketDimension(report.Bucket)}
	ts := aws.Time(report.FinishedAt)

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwTypes.MetricDatum{
			{
				MetricName: aws.String(MetricRowsInserted),
				Value:      aws.Float64(float64(report.RowsInserted)),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: dims,
				Timestamp:  ts,
			},
			{
				MetricName: aws.String(MetricRowsSkipped),
				Value:      aws.Float64(float64(report.RowsSkipped)),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: dims,
				Timestamp:  ts,
			},
			{
				MetricName: aws.String(MetricIngestDurationMs),
				Value:      aws.Float64(float64(report.Duration().Milliseconds())),
				Unit:       cwTypes.StandardUnitMilliseconds,
				Dimensions: dims,
				Timestamp:  ts,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish ingest metrics: %w", err)
	}
	return nil
}

// PublishFailure emits IngestFailures=1 dimensioned by error code so alarms
// can separate bad input from infrastructure outages.
func (p *MetricPublisher) PublishFailure(ctx context.Context, ref types.ObjectRef, code types.ErrorCode) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwTypes.MetricDatum{
			{
				MetricName: aws.String(MetricIngestFailures),
				Value:      aws.Float64(1),
				Unit:       cwTypes.StandardUnitCount,
				Dimensions: []cwTypes.Dimension{
					bucketDimension(ref.Bucket),
					{
						Name:  aws.String("ErrorCode"),
						Value: aws.String(string(code)),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish IngestFailures metric: %w", err)
	}
	return nil
}

// bucketDimension returns the Bucket dimension. CloudWatch rejects empty
// dimension values, so an unknown bucket is reported as "unknown".
func bucketDimension(bucket string) cwTypes.Dimension {
	if bucket == "" {
		bucket = "unknown"
	}
	return cwTypes.Dimension{
		Name:  aws.String("Bucket"),
		Value: aws.String(bucket),
	}
}
