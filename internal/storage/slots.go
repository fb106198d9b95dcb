package storage

import (
	"context"
	"errors"
)

// Slots is a durable string-keyed store of serialized cart documents.
// Implementations must report a missing key as ErrSlotNotFound and treat
// deleting a missing key as success.
type Slots interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrSlotNotFound = errors.New("slot not found")
