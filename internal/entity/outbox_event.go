package entity

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle operations recorded in the outbox alongside the metadata
// change that produced them.
const (
	OpUploaded = "uploaded"
	OpDeleted  = "deleted"
)

type OutboxEvent struct {
	ID          uuid.UUID  `json:"id"`
	ImageName   string     `json:"image_name"`
	Payload     []byte     `json:"payload"`
	Status      Status     `json:"status"` // pending, processing, processed, failed
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
}
