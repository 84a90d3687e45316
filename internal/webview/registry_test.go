// ABOUTME: Tests for the active session registry.
// ABOUTME: Covers registration lifecycle and bulk cancellation with re-entrant removal.

package webview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attach-webview/internal/gateway"
)

func openSession(t *testing.T, f *fixture) *Session {
	t.Helper()
	s := NewSession(Config{
		Gateway:   f.gw,
		Trust:     f.trust,
		Directory: f.dir,
		Menu:      f.menu,
		Registry:  f.registry,
		Opener:    f.opener,
		Notifier:  f.notifier,
	})
	s.OpenByBot(nil, Peer{ID: 42}, aliceBot(), Button{})
	call := f.gw.LastCall(gateway.MethodRequestWebView)
	require.NotNil(t, call)
	f.gw.Complete(call, `{"query_id": 1, "url": "https://x"}`)
	require.Equal(t, StateOpen, s.State())
	return s
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(nil)
	s := &Session{}

	r.Add(s)
	r.Add(s)
	assert.Equal(t, 1, r.Len())

	r.Remove(s)
	assert.Equal(t, 0, r.Len())

	// Removing an unknown session is a no-op.
	r.Remove(s)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ClearAllEmpty(t *testing.T) {
	r := NewRegistry(nil)
	r.ClearAll()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ClearAllCancelsEverySession(t *testing.T) {
	f := newFixture()

	sessions := make([]*Session, 0, 3)
	for i := 0; i < 3; i++ {
		sessions = append(sessions, openSession(t, f))
	}
	require.Equal(t, 3, f.registry.Len())

	f.registry.ClearAll()

	assert.Equal(t, 0, f.registry.Len())
	for _, s := range sessions {
		assert.Equal(t, StateIdle, s.State())
	}
}
