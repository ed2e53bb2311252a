// Package bridge decouples message delivery from durable storage. Messages
// are persisted whether or not anyone is listening, and every store call
// carries a bounded timeout so a slow store cannot stall a connection's task
// indefinitely.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/store"
)

// ErrStorageUnavailable reports that the durable store was unreachable or
// timed out.
var ErrStorageUnavailable = errors.New("storage unavailable")

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Bridge implements core.PersistenceBridge on top of a store.
type Bridge struct {
	store   store.Store
	timeout time.Duration
	log     *zerolog.Logger
}

// New builds a bridge. timeout bounds each store call; zero means 5s.
func New(st store.Store, timeout time.Duration, logger *zerolog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		store:   st,
		timeout: timeout,
		log:     logger,
	}
}

// AppendMessage durably stores the message and assigns its identifier. The
// append succeeds or fails independently of delivery.
func (b *Bridge) AppendMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	if err := b.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return msg, nil
}

// RecentMessages returns up to limit non-deleted messages for the room in
// chronological order. The limit is clamped to [1, 100]; zero or negative
// selects the default of 50. When beforeID references a known message, only
// messages strictly older than its timestamp are included; an unknown cursor
// is ignored.
func (b *Bridge) RecentMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	limit = clampLimit(limit)

	var before *time.Time
	if beforeID != "" {
		cursor, err := b.store.GetMessage(ctx, beforeID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			b.log.Warn().Str("before_id", beforeID).Msg("unknown pagination cursor ignored")
		case err != nil:
			return nil, fmt.Errorf("%w: resolve cursor: %w", ErrStorageUnavailable, err)
		default:
			before = &cursor.CreatedAt
		}
	}

	messages, err := b.store.ListRecentMessages(ctx, roomID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return messages, nil
}

// AddRosterMember records the user on the room's persisted roster.
// Best-effort: session membership in the hub does not depend on it.
func (b *Bridge) AddRosterMember(ctx context.Context, roomID, userID string) error {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	if err := b.store.AddRosterMember(ctx, roomID, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// TouchRoomActivity updates the room's last-activity timestamp. Best-effort:
// callers log failures and move on.
func (b *Bridge) TouchRoomActivity(ctx context.Context, roomID string) error {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	if err := b.store.TouchRoomActivity(ctx, roomID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (b *Bridge) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
