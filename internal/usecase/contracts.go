package usecase

import (
	"context"
	"io"

	"github.com/imgvault/imgvault/internal/entity"
)

type (
	ImageUseCase interface {
		Upload(ctx context.Context, name, filename, contentType string, payload io.Reader) (*entity.ImageRecord, error)
		Fetch(ctx context.Context, name string) (io.ReadCloser, *entity.ImageRecord, error)
		Metadata(ctx context.Context, name string) (*entity.ImageRecord, error)
		RandomMetadata(ctx context.Context) (*entity.ImageRecord, error)
		Delete(ctx context.Context, name string) error
		StatBlob(ctx context.Context, key string) (int64, error)

		GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error)
		MarkAsProcessingBatch(ctx context.Context, events []*entity.OutboxEvent) error
		MarkAsProcessedBatch(ctx context.Context, events []*entity.OutboxEvent) error
		IncrementRetryCountBatch(ctx context.Context, events []*entity.OutboxEvent) error
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		CleanupOutbox(ctx context.Context) error
	}
)
