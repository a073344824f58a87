package service

import (
	"context"

	"github.com/cypherlabdev/market-signals-service/internal/models"
)

// SignalReader is an interface that abstracts the read side of the store
// This allows for easier testing and mocking
type SignalReader interface {
	SignalsByEvent(ctx context.Context, eventID string) ([]*models.Signal, error)
	RegimeSnapshotsByEvent(ctx context.Context, eventID string) ([]models.RegimeSnapshot, error)
	PropagationByEvent(ctx context.Context, eventID string) ([]models.PropagationEvent, error)
	ClvByEvent(ctx context.Context, eventID string) ([]models.ClvRecord, error)
}
