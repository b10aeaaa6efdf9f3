// Package store holds the persistence collaborators the chat workflow talks
// to: identity resolution, user profile facts and conversation history. The
// workflow treats failures here as "feature not available this turn", so
// implementations should return errors rather than block.
package store

import "context"

// Turn is one persisted conversation message.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// IdentityResolver maps a platform-scoped external id to a stable internal id.
type IdentityResolver interface {
	// GetOrCreateInternalID returns the internal id for (platform,
	// externalID), creating it when first seen. displayHint is a best-effort
	// human-readable handle stored alongside.
	GetOrCreateInternalID(ctx context.Context, platform, externalID, displayHint string) (string, error)
}

// ProfileStore reads and writes verified user facts.
type ProfileStore interface {
	GetProfile(ctx context.Context, internalID string) (map[string]string, error)
	UpdateProfile(ctx context.Context, internalID string, patch map[string]string) error
}

// HistoryStore appends and reads conversation turns.
type HistoryStore interface {
	// LoadRecent returns up to limit turns, oldest first.
	LoadRecent(ctx context.Context, internalID string, limit int) ([]Turn, error)
	Append(ctx context.Context, internalID, role, text string) error
}

// Store bundles the three collaborator interfaces; both the SQLite and the
// in-memory implementations satisfy it.
type Store interface {
	IdentityResolver
	ProfileStore
	HistoryStore
	Close() error
}
