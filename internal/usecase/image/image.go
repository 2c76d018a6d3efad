package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/imgvault/imgvault/internal/entity"
	"github.com/imgvault/imgvault/internal/repo"
	"github.com/imgvault/imgvault/pkg/logger"
	"github.com/imgvault/imgvault/pkg/types/errs"
)

// ImageUseCase coordinates the blob store and the metadata store. It is
// the only component aware of both; each operation is a short saga whose
// step order decides what a partial failure leaves behind.
type ImageUseCase struct {
	imageRepo          repo.ImageRepo
	metadataRepo       repo.ImageMetadataRepo
	outboxMetadataRepo repo.OutboxImageMetadataRepo
	transactor         repo.Transactor

	allowedExtensions map[string]bool

	logger logger.Interface
}

func New(
	imageRepo repo.ImageRepo,
	metadataRepo repo.ImageMetadataRepo,
	outboxRepo repo.OutboxImageMetadataRepo,
	transactor repo.Transactor,
	allowedExtensions []string,
	l logger.Interface,
) *ImageUseCase {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		if e, err := NormalizeExtension(ext); err == nil {
			allowed[e] = true
		}
	}

	return &ImageUseCase{
		imageRepo:          imageRepo,
		metadataRepo:       metadataRepo,
		outboxMetadataRepo: outboxRepo,
		transactor:         transactor,
		allowedExtensions:  allowed,
		logger:             l,
	}
}

// Upload stores the payload under the derived key first, then publishes
// the record with an upsert. The blob write happens before the metadata
// write so a reader can never see a record whose payload is missing
// because of this saga.
//
// When name is empty it is derived from the filename stem. An existing
// name is overwritten in place: the upsert replaces all fields but the
// name, and the old payload is simply replaced at the re-derived key.
func (uc *ImageUseCase) Upload(
	ctx context.Context,
	name string,
	filename string,
	contentType string,
	payload io.Reader,
) (*entity.ImageRecord, error) {
	if name == "" {
		base := filepath.Base(filename)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	name, err := SanitizeName(name)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - Upload - SanitizeName: %w", err)
	}

	extension, err := NormalizeExtension(filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - Upload - NormalizeExtension: %w", err)
	}

	if !uc.allowedExtensions[extension] {
		return nil, fmt.Errorf("ImageUseCase - Upload: %w: %q", errs.ErrUnsupportedType, extension)
	}

	key := DeriveKey(name, extension)

	// 1. the payload goes to the blob store first, measured in flight
	sizeBytes, err := uc.imageRepo.Upload(ctx, key, payload, contentType)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - Upload - uc.imageRepo.Upload: %w", err)
	}

	record := &entity.ImageRecord{
		Name:          name,
		SizeBytes:     sizeBytes,
		Extension:     extension,
		StorageKey:    key,
		LastUpdatedAt: time.Now(),
	}

	// 2. the metadata upsert makes the change visible, together with the
	// lifecycle event for the outbox relay
	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.metadataRepo.Upsert(ctx, record); err != nil {
			return fmt.Errorf("ImageUseCase - Upload - uc.metadataRepo.Upsert: %w", err)
		}

		event, err := uc.createOutboxEvent(record, entity.OpUploaded)
		if err != nil {
			return fmt.Errorf("ImageUseCase - Upload - uc.createOutboxEvent: %w", err)
		}
		if err := uc.outboxMetadataRepo.Create(ctx, event); err != nil {
			return fmt.Errorf("ImageUseCase - Upload - uc.outboxMetadataRepo.Create: %w", err)
		}

		return nil
	})
	if err != nil {
		// The blob at key is now orphaned. Deliberately no rollback: a
		// retried upload overwrites the same key, and deleting here could
		// race a concurrent upload that just wrote its own payload to the
		// same key. The orphan is invisible to readers.
		uc.logger.Warn("orphaned blob after failed metadata write: name=%s key=%s", name, key)

		return nil, fmt.Errorf("ImageUseCase - Upload - uc.transactor.WithinTransaction: %w", err)
	}

	return record, nil
}

// Fetch resolves the name in the metadata store, then streams the blob.
// A missing row short-circuits without touching the blob store. A missing
// blob behind a live row is reported as ErrInconsistent, never as a plain
// not-found, so "never existed" and "corrupted" stay distinguishable.
func (uc *ImageUseCase) Fetch(ctx context.Context, name string) (io.ReadCloser, *entity.ImageRecord, error) {
	record, err := uc.metadataRepo.GetByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("ImageUseCase - Fetch - uc.metadataRepo.GetByName: %w", err)
	}

	body, err := uc.imageRepo.Download(ctx, record.StorageKey)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			uc.logger.Warn("blob missing for live record: name=%s key=%s", record.Name, record.StorageKey)

			return nil, nil, fmt.Errorf("ImageUseCase - Fetch: %w: name=%s key=%s", errs.ErrInconsistent, record.Name, record.StorageKey)
		}
		return nil, nil, fmt.Errorf("ImageUseCase - Fetch - uc.imageRepo.Download: %w", err)
	}

	return body, record, nil
}

func (uc *ImageUseCase) Metadata(ctx context.Context, name string) (*entity.ImageRecord, error) {
	record, err := uc.metadataRepo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - Metadata - uc.metadataRepo.GetByName: %w", err)
	}

	return record, nil
}

func (uc *ImageUseCase) RandomMetadata(ctx context.Context) (*entity.ImageRecord, error) {
	record, err := uc.metadataRepo.PickRandom(ctx)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - RandomMetadata - uc.metadataRepo.PickRandom: %w", err)
	}

	return record, nil
}

// Delete removes the blob first, then the metadata row — upload's order
// in reverse. If the blob delete fails the row stays and the caller sees
// an error instead of a dangling reference; if the row delete fails after
// the blob went, a later Fetch surfaces ErrInconsistent and retrying
// Delete is the remedy (the blob delete is idempotent).
func (uc *ImageUseCase) Delete(ctx context.Context, name string) error {
	record, err := uc.metadataRepo.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("ImageUseCase - Delete - uc.metadataRepo.GetByName: %w", err)
	}

	if err := uc.imageRepo.Delete(ctx, record.StorageKey); err != nil {
		return fmt.Errorf("ImageUseCase - Delete - uc.imageRepo.Delete: %w", err)
	}

	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.metadataRepo.DeleteByName(ctx, name); err != nil {
			return fmt.Errorf("ImageUseCase - Delete - uc.metadataRepo.DeleteByName: %w", err)
		}

		event, err := uc.createOutboxEvent(record, entity.OpDeleted)
		if err != nil {
			return fmt.Errorf("ImageUseCase - Delete - uc.createOutboxEvent: %w", err)
		}
		if err := uc.outboxMetadataRepo.Create(ctx, event); err != nil {
			return fmt.Errorf("ImageUseCase - Delete - uc.outboxMetadataRepo.Create: %w", err)
		}

		return nil
	})
	if err != nil {
		uc.logger.Warn("dangling metadata after blob delete: name=%s key=%s", record.Name, record.StorageKey)

		return fmt.Errorf("ImageUseCase - Delete - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}

// StatBlob reports the stored length of a blob; the verifier uses it to
// re-check record/payload coherence without downloading anything.
func (uc *ImageUseCase) StatBlob(ctx context.Context, key string) (int64, error) {
	size, err := uc.imageRepo.Stat(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("ImageUseCase - StatBlob - uc.imageRepo.Stat: %w", err)
	}

	return size, nil
}

func (uc *ImageUseCase) GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error) {
	events, err := uc.outboxMetadataRepo.GetPendingEvents(ctx, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - GetPendingEvents - uc.outboxMetadataRepo.GetPendingEvents: %w", err)
	}

	return events, nil
}

func (uc *ImageUseCase) MarkAsProcessingBatch(ctx context.Context, events []*entity.OutboxEvent) error {
	err := uc.outboxMetadataRepo.MarkAsProcessingBatch(ctx, eventIDs(events))
	if err != nil {
		return fmt.Errorf("ImageUseCase - MarkAsProcessingBatch - uc.outboxMetadataRepo.MarkAsProcessingBatch: %w", err)
	}

	return nil
}

func (uc *ImageUseCase) MarkAsProcessedBatch(ctx context.Context, events []*entity.OutboxEvent) error {
	err := uc.outboxMetadataRepo.MarkAsProcessedBatch(ctx, eventIDs(events))
	if err != nil {
		return fmt.Errorf("ImageUseCase - MarkAsProcessedBatch - uc.outboxMetadataRepo.MarkAsProcessedBatch: %w", err)
	}

	return nil
}

func (uc *ImageUseCase) IncrementRetryCountBatch(ctx context.Context, events []*entity.OutboxEvent) error {
	err := uc.outboxMetadataRepo.IncrementRetryCountBatch(ctx, eventIDs(events))
	if err != nil {
		return fmt.Errorf("ImageUseCase - IncrementRetryCountBatch - uc.outboxMetadataRepo.IncrementRetryCountBatch: %w", err)
	}

	return nil
}

func (uc *ImageUseCase) MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error {
	err := uc.outboxMetadataRepo.MarkMaxRetriesAsFailed(ctx, maxRetries)
	if err != nil {
		return fmt.Errorf("ImageUseCase - MarkMaxRetriesAsFailed - uc.outboxMetadataRepo.MarkMaxRetriesAsFailed: %w", err)
	}

	return nil
}

func (uc *ImageUseCase) CleanupOutbox(ctx context.Context) error {
	count, err := uc.outboxMetadataRepo.DeleteOldProcessedAndFailed(ctx)
	if err != nil {
		return fmt.Errorf("ImageUseCase - CleanupOutbox - uc.outboxMetadataRepo.DeleteOldProcessedAndFailed: %w", err)
	}

	if count > 0 {
		uc.logger.Info("deleted old events, count = %d", count)
	}

	return nil
}
