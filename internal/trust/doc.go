// Package trust persists per-bot web-view consent flags, durable across
// sessions via SQLite.
package trust
