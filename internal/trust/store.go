// ABOUTME: Trust store interface for per-bot web-view consent flags.
// ABOUTME: Consulted before every session open; written only on explicit user confirmation.

package trust

import "context"

// Store persists the per-bot "user has consented to open web-views" flag.
// Reads happen before every session open; writes only on explicit user
// confirmation, so the flag is durable across sessions.
type Store interface {
	IsTrusted(ctx context.Context, botID int64) (bool, error)
	MarkTrusted(ctx context.Context, botID int64) error
}
