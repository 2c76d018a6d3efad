package persistent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/imgvault/imgvault/pkg/s3client"
	"github.com/imgvault/imgvault/pkg/types/errs"
)

type ImageRepo struct {
	*s3client.S3Client
	bucket string
}

func NewImageRepo(s3c *s3client.S3Client, bucket string) *ImageRepo {
	return &ImageRepo{s3c, bucket}
}

// Upload streams data to the bucket, counting bytes on the way through.
// The payload is never buffered; the returned length is what actually
// crossed the wire.
func (r *ImageRepo) Upload(ctx context.Context, key string, data io.Reader, contentType string) (int64, error) {
	cr := newCountReader(data)

	_, err := r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        cr,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("ImageRepo - Upload - r.Client.PutObject: %w", classifyS3Err(err))
	}

	return cr.Total(), nil
}

func (r *ImageRepo) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := r.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("ImageRepo - Download - r.Client.GetObject: %w", classifyS3Err(err))
	}

	return result.Body, nil
}

func (r *ImageRepo) Stat(ctx context.Context, key string) (int64, error) {
	result, err := r.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("ImageRepo - Stat - r.Client.HeadObject: %w", classifyS3Err(err))
	}

	return aws.ToInt64(result.ContentLength), nil
}

// Delete mirrors S3 semantics: deleting an absent key succeeds, which is
// what makes delete retries safe upstream.
func (r *ImageRepo) Delete(ctx context.Context, key string) error {
	_, err := r.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("ImageRepo - Delete - r.Client.DeleteObject: %w", classifyS3Err(err))
	}

	return nil
}

// classifyS3Err folds SDK errors into the shared taxonomy: a missing key
// is ErrRecordNotFound, everything else is a transient store failure. The
// original message is kept for the log line.
func classifyS3Err(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, err)
	}

	return fmt.Errorf("%w: %s", errs.ErrStoreUnavailable, err)
}
