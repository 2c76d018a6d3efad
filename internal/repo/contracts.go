package repo

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/imgvault/imgvault/internal/entity"
)

type (
	// ImageRepo is the blob side of the split: opaque payloads addressed
	// by key, no knowledge of image metadata.
	ImageRepo interface {
		// Upload streams data to the store and returns the number of
		// bytes actually transferred.
		Upload(ctx context.Context, key string, data io.Reader, contentType string) (int64, error)
		Download(ctx context.Context, key string) (io.ReadCloser, error)
		// Stat returns the stored payload length without fetching it.
		Stat(ctx context.Context, key string) (int64, error)
		// Delete is idempotent: deleting an absent key is not an error.
		Delete(ctx context.Context, key string) error
	}

	// ImageMetadataRepo is the structured side: one row per live image,
	// keyed by unique name.
	ImageMetadataRepo interface {
		GetByName(ctx context.Context, name string) (*entity.ImageRecord, error)
		// Upsert inserts the record or replaces every field but the name.
		// Safe to retry with identical input.
		Upsert(ctx context.Context, record *entity.ImageRecord) error
		// DeleteByName is idempotent: no error when the row is absent.
		DeleteByName(ctx context.Context, name string) error
		// PickRandom returns one record with uniform probability over all
		// live rows, or errs.ErrEmptyStore when there are none.
		PickRandom(ctx context.Context) (*entity.ImageRecord, error)
	}

	OutboxImageMetadataRepo interface {
		Create(ctx context.Context, event *entity.OutboxEvent) error
		GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error)
		MarkAsProcessingBatch(ctx context.Context, IDs uuid.UUIDs) error
		MarkAsProcessedBatch(ctx context.Context, IDs uuid.UUIDs) error
		IncrementRetryCountBatch(ctx context.Context, IDs uuid.UUIDs) error
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		DeleteOldProcessedAndFailed(ctx context.Context) (int64, error)
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
