// Package state keeps the per-(chat, user) pending command: the partial
// text a handler saved while it waits for the user's next message.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/sipeed/picobot/pkg/bus"
)

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("state: store closed")

// PendingCommand is a command awaiting continuation. PartialText includes
// the command token, so appending the user's next text yields a complete
// command line. A Finished record is kept only for bookkeeping and is never
// resumed.
type PendingCommand struct {
	Key         bus.ConversationKey
	CommandID   string
	PartialText string
	Finished    bool
	UpdatedAt   time.Time
}

// Store holds at most one PendingCommand per ConversationKey.
type Store interface {
	// Get returns the pending command for key, or nil when there is none.
	Get(ctx context.Context, key bus.ConversationKey) (*PendingCommand, error)
	// Save replaces any existing entry for the same key.
	Save(ctx context.Context, p PendingCommand) error
	// Remove is a no-op for an absent key.
	Remove(ctx context.Context, key bus.ConversationKey) error
	// Take atomically returns and removes the entry. Two concurrent Takes
	// for the same key never both observe it.
	Take(ctx context.Context, key bus.ConversationKey) (*PendingCommand, error)
	// PurgeOlderThan drops entries last saved before cutoff and reports how many.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
