package persistent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/Masterminds/squirrel"
	"github.com/imgvault/imgvault/internal/entity"
	"github.com/imgvault/imgvault/pkg/postgres"
	"github.com/imgvault/imgvault/pkg/types/errs"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	imagesTable = "images"

	// Columns
	nameColumn          = "name"
	sizeBytesColumn     = "size_bytes"
	extensionColumn     = "extension"
	storageKeyColumn    = "storage_key"
	lastUpdatedAtColumn = "last_updated_at"
)

type ImageMetadataRepo struct {
	*postgres.Postgres
}

func NewImageMetadataRepo(pg *postgres.Postgres) *ImageMetadataRepo {
	return &ImageMetadataRepo{pg}
}

func (r *ImageMetadataRepo) GetByName(ctx context.Context, name string) (*entity.ImageRecord, error) {
	sql, args, err := r.Builder.
		Select(
			nameColumn,
			sizeBytesColumn,
			extensionColumn,
			storageKeyColumn,
			lastUpdatedAtColumn,
		).
		From(imagesTable).
		Where(squirrel.Eq{nameColumn: name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ImageMetadataRepo - GetByName - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var record entity.ImageRecord
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&record.Name,
		&record.SizeBytes,
		&record.Extension,
		&record.StorageKey,
		&record.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ImageMetadataRepo - GetByName: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("ImageMetadataRepo - GetByName - executor.QueryRow: %w", classifyPgErr(err))
	}

	return &record, nil
}

// Upsert inserts the record or, when the name already exists, replaces
// every field but the name. Re-running it with identical input is a no-op,
// which keeps upload retries safe.
func (r *ImageMetadataRepo) Upsert(ctx context.Context, record *entity.ImageRecord) error {
	conflict := fmt.Sprintf(
		"ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = EXCLUDED.%s",
		nameColumn,
		sizeBytesColumn, sizeBytesColumn,
		extensionColumn, extensionColumn,
		storageKeyColumn, storageKeyColumn,
		lastUpdatedAtColumn, lastUpdatedAtColumn,
	)

	sql, args, err := r.Builder.
		Insert(imagesTable).
		Columns(
			nameColumn,
			sizeBytesColumn,
			extensionColumn,
			storageKeyColumn,
			lastUpdatedAtColumn,
		).
		Values(
			record.Name,
			record.SizeBytes,
			record.Extension,
			record.StorageKey,
			record.LastUpdatedAt,
		).
		Suffix(conflict).
		ToSql()
	if err != nil {
		return fmt.Errorf("ImageMetadataRepo - Upsert - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ImageMetadataRepo - Upsert - executor.Exec: %w", classifyPgErr(err))
	}

	return nil
}

func (r *ImageMetadataRepo) DeleteByName(ctx context.Context, name string) error {
	sql, args, err := r.Builder.
		Delete(imagesTable).
		Where(squirrel.Eq{nameColumn: name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ImageMetadataRepo - DeleteByName - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	// Zero rows affected is fine: delete-by-name is idempotent.
	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ImageMetadataRepo - DeleteByName - executor.Exec: %w", classifyPgErr(err))
	}

	return nil
}

// PickRandom selects one record with uniform probability over all live
// rows: count first, then fetch the row at a random ordinal under a fixed
// ordering. Offset selection over the live count carries no bias from row
// sizes or insertion order.
func (r *ImageMetadataRepo) PickRandom(ctx context.Context) (*entity.ImageRecord, error) {
	countSQL, countArgs, err := r.Builder.
		Select("count(*)").
		From(imagesTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ImageMetadataRepo - PickRandom - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var total int64
	err = executor.QueryRow(ctx, countSQL, countArgs...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("ImageMetadataRepo - PickRandom - executor.QueryRow: %w", classifyPgErr(err))
	}

	if total == 0 {
		return nil, fmt.Errorf("ImageMetadataRepo - PickRandom: %w", errs.ErrEmptyStore)
	}

	offset := rand.Int63n(total)

	sql, args, err := r.Builder.
		Select(
			nameColumn,
			sizeBytesColumn,
			extensionColumn,
			storageKeyColumn,
			lastUpdatedAtColumn,
		).
		From(imagesTable).
		OrderBy(nameColumn + " ASC").
		Offset(uint64(offset)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ImageMetadataRepo - PickRandom - r.Builder.ToSql: %w", err)
	}

	var record entity.ImageRecord
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&record.Name,
		&record.SizeBytes,
		&record.Extension,
		&record.StorageKey,
		&record.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The table shrank between the two queries and the ordinal
			// fell past the end.
			return nil, fmt.Errorf("ImageMetadataRepo - PickRandom: %w", errs.ErrEmptyStore)
		}
		return nil, fmt.Errorf("ImageMetadataRepo - PickRandom - executor.QueryRow: %w", classifyPgErr(err))
	}

	return &record, nil
}

func classifyPgErr(err error) error {
	return fmt.Errorf("%w: %s", errs.ErrStoreUnavailable, err)
}
