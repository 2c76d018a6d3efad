package entity

import "time"

// ImageRecord is the metadata row for one live image. Name is the unique
// public identifier (case-sensitive). StorageKey is derived from name and
// extension but persisted explicitly so a future key scheme change does
// not orphan already stored payloads.
type ImageRecord struct {
	Name          string    `json:"name"`
	SizeBytes     int64     `json:"size_bytes"`
	Extension     string    `json:"extension"`
	StorageKey    string    `json:"storage_key"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
