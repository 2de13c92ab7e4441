package store

import (
	"context"

	"dijon/internal/models"
)

// Store abstracts persistence of per-user conversation history.
// Implementations can be file-based, database, etc. History must return
// messages in append order and an empty slice (not an error) for an unknown
// user. Append must create the conversation lazily and persist durably
// before returning. Implementations must be safe for concurrent use.
type Store interface {
	History(ctx context.Context, userID string) ([]models.Message, error)
	Append(ctx context.Context, userID string, msg models.Message) error
	Clear(ctx context.Context, userID string) error
	Close() error
}
