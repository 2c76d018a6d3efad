package image

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imgvault/imgvault/internal/entity"
)

func (uc *ImageUseCase) createOutboxEvent(record *entity.ImageRecord, operation string) (*entity.OutboxEvent, error) {
	payload := map[string]interface{}{
		"name":        record.Name,
		"storage_key": record.StorageKey,
		"size_bytes":  record.SizeBytes,
		"extension":   record.Extension,
		"operation":   operation,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ImageUseCase - createOutboxEvent - json.Marshal: %w", err)
	}

	return &entity.OutboxEvent{
		ID:         uuid.New(),
		ImageName:  record.Name,
		Payload:    b,
		Status:     entity.Pending,
		CreatedAt:  time.Now(),
		RetryCount: 0,
	}, nil
}

func eventIDs(events []*entity.OutboxEvent) uuid.UUIDs {
	var IDs uuid.UUIDs

	for _, event := range events {
		IDs = append(IDs, event.ID)
	}

	return IDs
}
