// Package gateway is the boundary to the remote service: named asynchronous
// calls that complete exactly once with a payload or a wire error, plus
// best-effort cancellation.
//
// Cancellation is unconditional locally: once Cancel returns, the call's
// callback will never fire, even if the remote side still answers. The
// concrete Client speaks JSON frames over a websocket; MockGateway scripts
// outcomes for tests.
package gateway
