package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imgvault/imgvault/internal/entity"
	"github.com/imgvault/imgvault/pkg/logger"
	"github.com/imgvault/imgvault/pkg/types/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes -------------------------------------------------------------

type fakeBlobRepo struct {
	mu      sync.Mutex
	objects map[string][]byte

	uploadErr   error
	downloadErr error
	deleteErr   error
}

func newFakeBlobRepo() *fakeBlobRepo {
	return &fakeBlobRepo{objects: map[string][]byte{}}
}

func (f *fakeBlobRepo) Upload(ctx context.Context, key string, data io.Reader, contentType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrStoreUnavailable, err)
	}
	if f.uploadErr != nil {
		return 0, f.uploadErr
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b

	return int64(len(b)), nil
}

func (f *fakeBlobRepo) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: no blob at %s", errs.ErrRecordNotFound, key)
	}

	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlobRepo) Stat(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("%w: no blob at %s", errs.ErrRecordNotFound, key)
	}

	return int64(len(b)), nil
}

func (f *fakeBlobRepo) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)

	return nil
}

type fakeMetadataRepo struct {
	mu      sync.Mutex
	records map[string]entity.ImageRecord

	upsertErr error
}

func newFakeMetadataRepo() *fakeMetadataRepo {
	return &fakeMetadataRepo{records: map[string]entity.ImageRecord{}}
}

func (f *fakeMetadataRepo) GetByName(ctx context.Context, name string) (*entity.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrRecordNotFound, name)
	}

	return &record, nil
}

func (f *fakeMetadataRepo) Upsert(ctx context.Context, record *entity.ImageRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.Name] = *record

	return nil
}

func (f *fakeMetadataRepo) DeleteByName(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, name)

	return nil
}

func (f *fakeMetadataRepo) PickRandom(ctx context.Context) (*entity.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, record := range f.records {
		return &record, nil
	}

	return nil, errs.ErrEmptyStore
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*entity.OutboxEvent
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *entity.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)

	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*entity.OutboxEvent(nil), f.events...), nil
}

func (f *fakeOutboxRepo) MarkAsProcessingBatch(ctx context.Context, IDs uuid.UUIDs) error    { return nil }
func (f *fakeOutboxRepo) MarkAsProcessedBatch(ctx context.Context, IDs uuid.UUIDs) error     { return nil }
func (f *fakeOutboxRepo) IncrementRetryCountBatch(ctx context.Context, IDs uuid.UUIDs) error { return nil }
func (f *fakeOutboxRepo) MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error   { return nil }
func (f *fakeOutboxRepo) DeleteOldProcessedAndFailed(ctx context.Context) (int64, error)     { return 0, nil }

func (f *fakeOutboxRepo) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ops []string
	for _, event := range f.events {
		if bytes.Contains(event.Payload, []byte(entity.OpDeleted)) {
			ops = append(ops, entity.OpDeleted)
		} else {
			ops = append(ops, entity.OpUploaded)
		}
	}

	return ops
}

type fakeTransactor struct{}

func (fakeTransactor) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

type fixture struct {
	uc     *ImageUseCase
	blobs  *fakeBlobRepo
	meta   *fakeMetadataRepo
	outbox *fakeOutboxRepo
}

func newFixture() *fixture {
	blobs := newFakeBlobRepo()
	meta := newFakeMetadataRepo()
	outbox := &fakeOutboxRepo{}

	uc := New(blobs, meta, outbox, fakeTransactor{}, []string{"jpg", "jpeg", "png", "gif", "webp"}, logger.New("error"))

	return &fixture{uc: uc, blobs: blobs, meta: meta, outbox: outbox}
}

func payloadOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// ---- tests -------------------------------------------------------------

func TestUploadRoundTrip(t *testing.T) {
	fx := newFixture()
	payload := payloadOf(1024)

	record, err := fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, "cat", record.Name)
	assert.Equal(t, int64(1024), record.SizeBytes)
	assert.Equal(t, "png", record.Extension)
	assert.Equal(t, "images/cat.png", record.StorageKey)
	assert.WithinDuration(t, time.Now(), record.LastUpdatedAt, time.Minute)

	body, got, err := fx.uc.Fetch(context.Background(), "cat")
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, b)
	assert.Equal(t, record.StorageKey, got.StorageKey)
	assert.Equal(t, int64(len(b)), got.SizeBytes)

	assert.Equal(t, []string{entity.OpUploaded}, fx.outbox.operations())
}

func TestUploadDerivesNameFromFilename(t *testing.T) {
	fx := newFixture()

	record, err := fx.uc.Upload(context.Background(), "", "holiday-pic.jpg", "image/jpeg", bytes.NewReader(payloadOf(10)))
	require.NoError(t, err)

	assert.Equal(t, "holiday-pic", record.Name)
	assert.Equal(t, "images/holiday-pic.jpg", record.StorageKey)
}

func TestUploadRejectsUnusableName(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.Upload(context.Background(), "!!!", "x.png", "image/png", bytes.NewReader(payloadOf(10)))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	// nothing was written anywhere
	assert.Empty(t, fx.blobs.objects)
	assert.Empty(t, fx.meta.records)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.Upload(context.Background(), "payload", "payload.exe", "application/octet-stream", bytes.NewReader(payloadOf(10)))
	assert.ErrorIs(t, err, errs.ErrUnsupportedType)
	assert.Empty(t, fx.blobs.objects)
}

func TestOverwriteReplacesRecord(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(payloadOf(1024)))
	require.NoError(t, err)

	second := payloadOf(2048)
	_, err = fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(second))
	require.NoError(t, err)

	// exactly one live record, reflecting the second upload
	assert.Len(t, fx.meta.records, 1)

	record, err := fx.uc.Metadata(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), record.SizeBytes)

	body, _, err := fx.uc.Fetch(context.Background(), "cat")
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, second, b)
}

func TestFetchMissing(t *testing.T) {
	fx := newFixture()

	_, _, err := fx.uc.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
	assert.NotErrorIs(t, err, errs.ErrInconsistent)
}

func TestFetchInconsistentWhenBlobMissing(t *testing.T) {
	fx := newFixture()

	// a live record whose blob never made it (or was lost)
	fx.meta.records["ghost"] = entity.ImageRecord{
		Name:          "ghost",
		SizeBytes:     42,
		Extension:     "png",
		StorageKey:    "images/ghost.png",
		LastUpdatedAt: time.Now(),
	}

	_, _, err := fx.uc.Fetch(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.ErrInconsistent)
	assert.NotErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestDeleteThenFetchAndDeleteAgain(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(payloadOf(1024)))
	require.NoError(t, err)

	require.NoError(t, fx.uc.Delete(context.Background(), "cat"))

	// both stores are clean
	assert.Empty(t, fx.blobs.objects)
	assert.Empty(t, fx.meta.records)

	_, _, err = fx.uc.Fetch(context.Background(), "cat")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	// second delete reports not found, not success
	err = fx.uc.Delete(context.Background(), "cat")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	assert.Equal(t, []string{entity.OpUploaded, entity.OpDeleted}, fx.outbox.operations())
}

func TestDeleteBlobFailureKeepsRecord(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(payloadOf(64)))
	require.NoError(t, err)

	fx.blobs.deleteErr = fmt.Errorf("%w: s3 down", errs.ErrStoreUnavailable)

	err = fx.uc.Delete(context.Background(), "cat")
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)

	// the record still answers lookups; no dangling reference was created
	_, err = fx.uc.Metadata(context.Background(), "cat")
	assert.NoError(t, err)
}

func TestUploadMetadataFailureLeavesNoRecord(t *testing.T) {
	fx := newFixture()
	fx.meta.upsertErr = fmt.Errorf("%w: pg down", errs.ErrStoreUnavailable)

	_, err := fx.uc.Upload(context.Background(), "cat", "cat.png", "image/png", bytes.NewReader(payloadOf(1024)))
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)

	// no metadata row: the image does not exist as far as readers know
	_, err = fx.uc.Metadata(context.Background(), "cat")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	// the blob is orphaned on purpose; a retried upload reuses the key
	_, ok := fx.blobs.objects["images/cat.png"]
	assert.True(t, ok)
}

func TestUploadCanceledContextSkipsMetadata(t *testing.T) {
	fx := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.uc.Upload(ctx, "cat", "cat.png", "image/png", bytes.NewReader(payloadOf(16)))
	require.Error(t, err)

	assert.Empty(t, fx.meta.records)
	assert.Empty(t, fx.outbox.events)
}

func TestRandomMetadataEmptyStore(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.RandomMetadata(context.Background())
	assert.ErrorIs(t, err, errs.ErrEmptyStore)
	assert.NotErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestRandomMetadataReturnsLiveRecord(t *testing.T) {
	fx := newFixture()

	names := []string{"cat", "dog", "bird"}
	for _, name := range names {
		_, err := fx.uc.Upload(context.Background(), name, name+".png", "image/png", bytes.NewReader(payloadOf(32)))
		require.NoError(t, err)
	}

	record, err := fx.uc.RandomMetadata(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, record.Name)
}
