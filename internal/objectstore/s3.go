// Package objectstore fetches source objects from S3 and returns their
// decoded bytes. Objects compressed with zstd or gzip are inflated
// transparently; both the stored and the inflated size are capped.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"weatheringest/internal/types"
)

// GetObjectAPI is the subset of the S3 client used by the fetcher.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type encoding int

const (
	encodingIdentity encoding = iota
	encodingZstd
	encodingGzip
)

// S3Fetcher reads whole objects into memory.
type S3Fetcher struct {
	client   GetObjectAPI
	maxBytes int64
	logger   *slog.Logger

	decoderPool sync.Pool
}

// NewS3Fetcher creates a fetcher that rejects objects larger than maxBytes,
// measured both before and after decompression.
func NewS3Fetcher(client GetObjectAPI, maxBytes int64, logger *slog.Logger) *S3Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Fetcher{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

// Fetch downloads ref and returns its decoded content.
func (f *S3Fetcher) Fetch(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSourceObject,
				fmt.Sprintf("object s3://%s/%s does not exist", ref.Bucket, ref.Key), err)
		}
		if ctx.Err() != nil {
			return nil, types.NewAppError(types.ErrCodeInternalTimeout, "invocation deadline reached while fetching object", err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamObjectStore,
			fmt.Sprintf("failed to get s3://%s/%s", ref.Bucket, ref.Key), err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > f.maxBytes {
		return nil, f.tooLarge(ref, *out.ContentLength)
	}

	raw, err := f.readLimited(out.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamObjectStore, "failed to read object body", err)
	}
	if int64(len(raw)) > f.maxBytes {
		return nil, f.tooLarge(ref, int64(len(raw)))
	}

	enc := detectEncoding(ref.Key, aws.ToString(out.ContentEncoding))
	if enc == encodingIdentity {
		return raw, nil
	}

	decoded, err := f.decode(enc, raw)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalObjectDecode, "failed to decompress object", err)
	}
	if int64(len(decoded)) > f.maxBytes {
		return nil, f.tooLarge(ref, int64(len(decoded)))
	}

	f.logger.DebugContext(ctx, "decompressed source object",
		"bucket", ref.Bucket,
		"key", ref.Key,
		"compressed_bytes", len(raw),
		"decoded_bytes", len(decoded),
	)
	return decoded, nil
}

func (f *S3Fetcher) tooLarge(ref types.ObjectRef, size int64) error {
	return types.NewAppError(types.ErrCodeInternalObjectTooLarge,
		fmt.Sprintf("object s3://%s/%s exceeds %d bytes", ref.Bucket, ref.Key, f.maxBytes), nil).
		WithDetails(map[string]any{"size_bytes": size, "max_bytes": f.maxBytes})
}

// readLimited reads at most maxBytes+1 bytes so an oversized stream is
// detected without buffering all of it.
func (f *S3Fetcher) readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, f.maxBytes+1))
}

func (f *S3Fetcher) decode(enc encoding, raw []byte) ([]byte, error) {
	switch enc {
	case encodingZstd:
		decoder := f.decoderPool.Get().(*zstd.Decoder)
		defer f.decoderPool.Put(decoder)
		if err := decoder.Reset(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("zstd reset: %w", err)
		}
		out, err := f.readLimited(decoder)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}
		return out, nil
	case encodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		defer zr.Close()
		out, err := f.readLimited(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip decompression failed: %w", err)
		}
		return out, nil
	default:
		return raw, nil
	}
}

// detectEncoding prefers the key suffix and falls back to Content-Encoding.
func detectEncoding(key, contentEncoding string) encoding {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return encodingZstd
	case strings.HasSuffix(lower, ".gz"):
		return encodingGzip
	}
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "zstd":
		return encodingZstd
	case "gzip", "x-gzip":
		return encodingGzip
	}
	return encodingIdentity
}
