// Package webview orchestrates bot mini-app web-view sessions.
//
// # Overview
//
// A Session is the state machine for one web view at a time:
//
//	Idle -> Resolving -> AwaitingConsent -> Requesting -> Open -> Idle
//
// Entry points map to the three request shapes the remote service offers:
//
//   - OpenByUsername: resolve the bot first, then the primary request
//   - OpenByBot: primary request for an already-resolved bot
//   - OpenSimple / OpenFromMenuButton: self-chat variants
//
// Exactly one request shape is used per session. Untrusted,
// platform-unverified bots require a one-time confirmation that is persisted
// in the trust store before any request call is issued.
//
// # Call slots
//
// Each kind of remote call the session issues (primary request, prolongation,
// add-to-menu resolution) is single-flight: a replacement cancels the
// outgoing call first. Teardown bumps an epoch counter so replies for a
// superseded session are dropped.
//
// # Registry
//
// Every open session registers in a Registry so application shutdown can
// cancel them in bulk with ClearAll. Cancellation removes the session from
// the registry re-entrantly; ClearAll pops until empty rather than iterating
// a snapshot.
//
// # Keep-alive
//
// While a panel is open, a ticker issues prolongation calls. A tick that
// finds the previous call still outstanding is skipped, and failures never
// close an open panel.
package webview
