package infrastructure

import (
	"context"

	"github.com/imgvault/imgvault/internal/entity"
)

type (
	EventsSender interface {
		SendEvents(ctx context.Context, events []*entity.OutboxEvent) error
		Close() error
	}
)
