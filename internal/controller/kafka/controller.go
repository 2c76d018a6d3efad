package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imgvault/imgvault/internal/entity"
	kafkapc "github.com/imgvault/imgvault/internal/infrastructure/kafka"
	"github.com/imgvault/imgvault/internal/usecase"
	"github.com/imgvault/imgvault/pkg/logger"
	"github.com/imgvault/imgvault/pkg/types/errs"
	"github.com/segmentio/kafka-go"
)

// KafkaController is the reconciliation hook: it consumes lifecycle
// events and re-checks that the blob store and the metadata store agree
// about each touched image. Violations are logged for operators; eviction
// of orphaned blobs stays an out-of-band concern.
type KafkaController struct {
	img    usecase.ImageUseCase
	ec     *kafkapc.EventConsumer
	logger logger.Interface

	commitTimeout  time.Duration
	processTimeout time.Duration

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	img usecase.ImageUseCase,
	ec *kafkapc.EventConsumer,
	l logger.Interface,
	commitTimeout time.Duration,
	processTimeout time.Duration,
	workers int,
) *KafkaController {
	return &KafkaController{
		img:            img,
		ec:             ec,
		logger:         l,
		commitTimeout:  commitTimeout,
		processTimeout: processTimeout,
		workers:        workers,
	}
}

func (c *KafkaController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("KafkaController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	tasks := make(chan kafka.Message, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(tasks)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)

		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				event, err := c.ec.ReadEvent(c.ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						c.logger.Error(err, "KafkaController - Start - c.ec.ReadEvent")
					}
					continue
				}

				select {
				case tasks <- event:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

// verifyImage re-reads both stores for the image named in the event.
//
// After an upload the record must exist and the blob behind its current
// storage key must carry exactly the recorded length. After a delete the
// blob at the event's key must be gone unless the name was re-uploaded
// in the meantime. A record or key that no longer matches the event means
// a newer operation won the race; that is not a violation, the newer
// event covers it.
func (c *KafkaController) verifyImage(ctx context.Context, event kafka.Message) error {
	var payload ImageEventPayload
	err := json.Unmarshal(event.Value, &payload)
	if err != nil {
		return fmt.Errorf("KafkaController - verifyImage - json.Unmarshal: %w", err)
	}

	record, err := c.img.Metadata(ctx, payload.Name)

	switch payload.Operation {
	case entity.OpUploaded:
		if err != nil {
			if errors.Is(err, errs.ErrRecordNotFound) {
				// deleted since; the delete event verifies the rest
				return nil
			}
			return fmt.Errorf("KafkaController - verifyImage - c.img.Metadata: %w", err)
		}

		if record.StorageKey != payload.StorageKey {
			// overwritten under a new key since this event was emitted
			return nil
		}

		size, err := c.img.StatBlob(ctx, record.StorageKey)
		if err != nil {
			if errors.Is(err, errs.ErrRecordNotFound) {
				c.logger.Error(fmt.Errorf("%w: name=%s key=%s", errs.ErrInconsistent, record.Name, record.StorageKey),
					"KafkaController - verifyImage - blob missing for live record")

				return nil
			}
			return fmt.Errorf("KafkaController - verifyImage - c.img.StatBlob: %w", err)
		}

		if size != record.SizeBytes {
			c.logger.Error(fmt.Errorf("%w: name=%s key=%s recorded=%d stored=%d",
				errs.ErrInconsistent, record.Name, record.StorageKey, record.SizeBytes, size),
				"KafkaController - verifyImage - size mismatch")
		}

	case entity.OpDeleted:
		if err == nil {
			if record.StorageKey == payload.StorageKey {
				// re-uploaded to the same key; nothing to check
				return nil
			}
			// re-uploaded under a different key; the old one must be gone
		} else if !errors.Is(err, errs.ErrRecordNotFound) {
			return fmt.Errorf("KafkaController - verifyImage - c.img.Metadata: %w", err)
		}

		_, err = c.img.StatBlob(ctx, payload.StorageKey)
		if err == nil {
			c.logger.Warn("orphaned blob survived delete: name=%s key=%s", payload.Name, payload.StorageKey)

			return nil
		}
		if !errors.Is(err, errs.ErrRecordNotFound) {
			return fmt.Errorf("KafkaController - verifyImage - c.img.StatBlob: %w", err)
		}

	default:
		c.logger.Warn("unknown lifecycle operation %q, skipping", payload.Operation)
	}

	return nil
}

func (c *KafkaController) worker(tasks <-chan kafka.Message) {
	defer c.wg.Done()

	for event := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "KafkaController - worker - panic")
				}
			}()

			processCtx, processCancel := context.WithTimeout(c.ctx, c.processTimeout)
			err := c.verifyImage(processCtx, event)
			processCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.verifyImage")

				return
			}

			commitCtx, commitCancel := context.WithTimeout(c.ctx, c.commitTimeout)
			err = c.ec.CommitEvent(commitCtx, event)
			commitCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.ec.CommitEvent")
			}
		}()
	}
}

func (c *KafkaController) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		c.ec.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
