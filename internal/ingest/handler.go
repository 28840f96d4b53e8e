package ingest

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"

	"weatheringest/internal/types"
)

var validate = validator.New()

// ManualTrigger re-runs ingestion for an object without an S3 event, e.g.
// from the console or a recovery script.
type ManualTrigger struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// Handler is the Lambda entrypoint. It accepts either an S3 ObjectCreated
// event or a ManualTrigger and returns the committed report.
func (p *Pipeline) Handler(ctx context.Context, payload json.RawMessage) (*types.IngestReport, error) {
	ref, err := p.resolveTrigger(ctx, payload)
	if err != nil {
		p.logger().ErrorContext(ctx, "rejected trigger payload",
			"error_code", string(types.CodeOf(err)),
			"error", err,
		)
		p.publishFailure(ctx, p.logger(), ref, types.CodeOf(err))
		return nil, err
	}
	return p.Process(ctx, ref)
}

func (p *Pipeline) resolveTrigger(ctx context.Context, payload json.RawMessage) (types.ObjectRef, error) {
	var ref types.ObjectRef

	var s3Event events.S3Event
	if err := json.Unmarshal(payload, &s3Event); err == nil && len(s3Event.Records) > 0 {
		if n := len(s3Event.Records); n > 1 {
			p.logger().WarnContext(ctx, "S3 event carries multiple records; only the first is ingested",
				"records", n,
			)
		}
		record := s3Event.Records[0]
		ref.Bucket = record.S3.Bucket.Name
		// Keys arrive URL-encoded; URLDecodedKey is empty on older event
		// formats.
		ref.Key = record.S3.Object.URLDecodedKey
		if ref.Key == "" {
			ref.Key = record.S3.Object.Key
		}
		if ref.Bucket == "" || ref.Key == "" {
			return ref, types.NewAppError(types.ErrCodeValidationInvalidPayload, "S3 event record has no bucket or key", nil)
		}
	} else {
		var manual ManualTrigger
		if err := json.Unmarshal(payload, &manual); err != nil {
			return ref, types.NewAppError(types.ErrCodeValidationInvalidPayload, "payload is neither an S3 event nor a manual trigger", err)
		}
		if err := validate.Struct(manual); err != nil {
			return ref, types.NewAppError(types.ErrCodeValidationInvalidPayload, "manual trigger requires bucket and key", err)
		}
		ref = types.ObjectRef{Bucket: manual.Bucket, Key: manual.Key}
		p.logger().InfoContext(ctx, "processing manual trigger", "bucket", ref.Bucket, "key", ref.Key)
	}

	if p.Config.SourceBucket != "" && ref.Bucket != p.Config.SourceBucket {
		return ref, types.NewAppError(types.ErrCodeValidationUnexpectedBucket, "object is not in the configured source bucket", nil).
			WithDetails(map[string]any{
				"expected_bucket": p.Config.SourceBucket,
				"actual_bucket":   ref.Bucket,
			})
	}

	return ref, nil
}
