package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"weatheringest/internal/types"
)

// sqsMaxBatchSize is the SendMessageBatch entry limit.
const sqsMaxBatchSize = 10

// SQSAPI is the subset of the SQS SDK client used here.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SkippedRowMessage is the body of one queue message.
type SkippedRowMessage struct {
	RunID  string `json:"run_id"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Line   int    `json:"line"`
	Row    string `json:"row"`
	Reason string `json:"reason"`
}

// SkipQueue publishes one message per skipped row so rejected data can be
// inspected or repaired out of band.
type SkipQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSkipQueue creates a SkipQueue for the given queue URL.
func NewSkipQueue(client SQSAPI, queueURL string) *SkipQueue {
	return &SkipQueue{client: client, queueURL: queueURL}
}

// ReportSkipped sends rows in batches of ten. It stops at the first failed
// batch or when ctx is done.
func (q *SkipQueue) ReportSkipped(ctx context.Context, ref types.ObjectRef, runID string, rows []types.SkippedRow) error {
	for i := 0; i < len(rows); i += sqsMaxBatchSize {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during SQS send: %w", ctx.Err())
		default:
		}

		end := min(i+sqsMaxBatchSize, len(rows))
		chunk := rows[i:end]
		entries := make([]sqsTypes.SendMessageBatchRequestEntry, len(chunk))

		for j, row := range chunk {
			body, err := json.Marshal(SkippedRowMessage{
				RunID:  runID,
				Bucket: ref.Bucket,
				Key:    ref.Key,
				Line:   row.Line,
				Row:    row.Row,
				Reason: row.Reason,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal skipped row: %w", err)
			}
			entries[j] = sqsTypes.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("line-%d", row.Line)),
				MessageBody: aws.String(string(body)),
			}
		}

		output, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("SQS SendMessageBatch failed: %w", err)
		}
		if len(output.Failed) > 0 {
			return fmt.Errorf("SQS SendMessageBatch had %d failures, first: code=%s, message=%s",
				len(output.Failed),
				aws.ToString(output.Failed[0].Code),
				aws.ToString(output.Failed[0].Message),
			)
		}
	}
	return nil
}
