// ABOUTME: Tests for the hash-versioned attach-menu bot cache.
// ABOUTME: Covers full refresh, not-modified replies, failures, single-flight and fan-out.

package botmenu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
)

const fullPayload = `{
	"hash": 5,
	"users": [
		{"id": 1, "username": "alpha_bot", "name": "Alpha", "bot": true, "attach_menu_enabled": true},
		{"id": 2, "username": "beta_bot", "name": "Beta", "bot": true, "attach_menu_enabled": true},
		{"id": 3, "username": "gamma", "name": "Gamma", "bot": false},
		{"id": 4, "username": "delta_bot", "name": "Delta", "bot": true, "attach_menu_enabled": false}
	],
	"bots": [
		{"bot_id": 1, "short_name": "alpha", "icon_url": "https://icons/alpha.svg"},
		{"bot_id": 1, "short_name": "alpha-dupe"},
		{"bot_id": 2, "short_name": "beta", "inactive": true},
		{"bot_id": 3, "short_name": "gamma"},
		{"bot_id": 4, "short_name": "delta"},
		{"bot_id": 9, "short_name": "ghost"}
	]
}`

type recordingIcons struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingIcons) Fetch(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

func (r *recordingIcons) fetched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.urls))
	copy(out, r.urls)
	return out
}

func refresh(t *testing.T, gw *gateway.MockGateway, c *Cache, payload string) {
	t.Helper()
	c.Refresh()
	call := gw.LastCall(gateway.MethodGetAttachMenuBots)
	require.NotNil(t, call)
	gw.Complete(call, payload)
}

func TestCache_RefreshFullPayload(t *testing.T) {
	gw := gateway.NewMockGateway()
	dir := directory.New()
	icons := &recordingIcons{}
	c := New(gw, dir, icons, nil)

	refresh(t, gw, c, fullPayload)

	// Duplicates, inactive entries, non-bots, menu-incapable bots and
	// unresolvable IDs are all filtered out of the visible list.
	bots := c.Bots()
	require.Len(t, bots, 1)
	assert.Equal(t, int64(1), bots[0].Bot.ID)
	assert.Equal(t, "alpha", bots[0].ShortName)
	assert.Equal(t, int64(5), c.Hash())

	// Users from the payload landed in the directory.
	_, ok := dir.ByUsername("beta_bot")
	assert.True(t, ok)

	// The icon side-request was dispatched.
	assert.Eventually(t, func() bool {
		return len(icons.fetched()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://icons/alpha.svg", icons.fetched()[0])
}

func TestCache_RefreshSendsLocalHash(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)

	refresh(t, gw, c, fullPayload)

	c.Refresh()
	call := gw.LastCall(gateway.MethodGetAttachMenuBots)
	require.NotNil(t, call)
	assert.Equal(t, int64(5), call.Params["hash"])
}

func TestCache_NotModifiedLeavesStateUntouched(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)
	refresh(t, gw, c, fullPayload)

	ch, _ := c.Subscribe(context.Background())

	refresh(t, gw, c, `{"not_modified": true}`)

	assert.Equal(t, int64(5), c.Hash())
	assert.Len(t, c.Bots(), 1)
	select {
	case <-ch:
		t.Fatal("not-modified reply must not notify subscribers")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCache_FailureLeavesStateUntouched(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)
	refresh(t, gw, c, fullPayload)

	ch, _ := c.Subscribe(context.Background())

	c.Refresh()
	gw.Fail(gw.LastCall(gateway.MethodGetAttachMenuBots), "INTERNAL", "boom")

	assert.Equal(t, int64(5), c.Hash())
	assert.Len(t, c.Bots(), 1)
	select {
	case <-ch:
		t.Fatal("failed refresh must not notify subscribers")
	case <-time.After(50 * time.Millisecond):
	}

	// The slot is released; a later refresh issues a new call.
	c.Refresh()
	assert.Len(t, gw.CallsFor(gateway.MethodGetAttachMenuBots), 3)
}

func TestCache_RefreshSingleFlight(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)

	c.Refresh()
	c.Refresh()
	c.Refresh()

	assert.Len(t, gw.CallsFor(gateway.MethodGetAttachMenuBots), 1)
}

// inlineCaller completes every call before Call returns, the interleaving a
// real connection produces when the read loop dispatches the reply first.
type inlineCaller struct {
	mu     sync.Mutex
	nextID gateway.Handle
	calls  int
	reply  string
}

func (g *inlineCaller) Call(method string, params map[string]any, done func(payload []byte, err error)) gateway.Handle {
	g.mu.Lock()
	g.nextID++
	h := g.nextID
	g.calls++
	reply := g.reply
	g.mu.Unlock()
	done([]byte(reply), nil)
	return h
}

func (g *inlineCaller) Cancel(gateway.Handle) {}

func (g *inlineCaller) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestCache_RefreshReissuesAfterEarlyReply(t *testing.T) {
	gw := &inlineCaller{reply: `{"not_modified": true}`}
	c := New(gw, directory.New(), nil, nil)

	// Each refresh completes before its handle is stored; the slot must be
	// released all the same so the next refresh issues a fresh call.
	c.Refresh()
	c.Refresh()
	c.Refresh()

	assert.Equal(t, 3, gw.count())
}

func TestCache_SubscribersNotifiedOnChange(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)

	ch1, _ := c.Subscribe(context.Background())
	ch2, _ := c.Subscribe(context.Background())

	refresh(t, gw, c, fullPayload)

	for i, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestCache_UnsubscribeStopsNotifications(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)

	ch, subID := c.Subscribe(context.Background())
	c.Unsubscribe(subID)

	// The channel is closed on unsubscription.
	_, open := <-ch
	assert.False(t, open)

	refresh(t, gw, c, fullPayload)
	assert.Len(t, c.Bots(), 1)
}

func TestCache_ConcurrentUnsubscribeDuringNotify(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)

	subIDs := make([]string, 50)
	for i := range subIDs {
		_, subIDs[i] = c.Subscribe(context.Background())
	}

	// Unsubscribing while change notifications are being delivered must not
	// send on a closed channel.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range subIDs {
			c.Unsubscribe(id)
		}
	}()
	for i := 0; i < 20; i++ {
		refresh(t, gw, c, fullPayload)
	}
	wg.Wait()
}

func TestCache_BotsReturnsCopy(t *testing.T) {
	gw := gateway.NewMockGateway()
	c := New(gw, directory.New(), nil, nil)
	refresh(t, gw, c, fullPayload)

	bots := c.Bots()
	bots[0].ShortName = "mutated"

	assert.Equal(t, "alpha", c.Bots()[0].ShortName)
}
