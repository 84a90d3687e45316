// ABOUTME: Locally cached, hash-versioned list of attach-menu bots.
// ABOUTME: Refreshed via the gateway with hash-gated replies; notifies subscribers on change.

package botmenu

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
)

// Icons dispatches deferred icon downloads. Completion is never awaited.
type Icons interface {
	Fetch(url string)
}

// Entry is one attach-menu bot as last observed from the remote service.
type Entry struct {
	Bot       directory.Bot
	ShortName string
	IconURL   string
}

// Cache holds the attach-menu bot list plus its version hash. The hash is the
// server's identifier for the exact list contents; it is sent back on refresh
// so the service can reply "not modified" instead of a full payload. Only the
// refresh reply mutates the cache, and mutation is atomic-by-replacement.
type Cache struct {
	gw     gateway.Caller
	dir    *directory.Directory
	icons  Icons
	logger *slog.Logger

	mu            sync.RWMutex
	bots          []Entry
	hash          int64
	refreshing    bool
	refreshHandle gateway.Handle
	subscribers   map[string]chan struct{}
	closed        bool
}

// New creates an empty Cache. Pass nil icons to skip icon side-requests and
// nil logger for default.
func New(gw gateway.Caller, dir *directory.Directory, icons Icons, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		gw:          gw,
		dir:         dir,
		icons:       icons,
		logger:      logger.With("component", "botmenu"),
		subscribers: make(map[string]chan struct{}),
	}
}

// Bots returns the visible (non-inactive) attach-menu bots.
func (c *Cache) Bots() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.bots))
	copy(out, c.bots)
	return out
}

// Hash returns the version hash of the last full payload, zero before the
// first successful refresh.
func (c *Cache) Hash() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hash
}

// Refresh asks the remote service for the attach-menu bot list, sending the
// locally held hash. A refresh while one is outstanding is a no-op. Failures
// leave the cache untouched; there is no automatic retry.
func (c *Cache) Refresh() {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	hash := c.hash
	c.mu.Unlock()

	h := c.gw.Call(gateway.MethodGetAttachMenuBots, map[string]any{
		"hash": hash,
	}, func(payload []byte, err error) {
		c.refreshDone(payload, err)
	})

	// The reply may have been dispatched before this point; only keep the
	// handle while the call is still in flight.
	c.mu.Lock()
	if c.refreshing {
		c.refreshHandle = h
	}
	c.mu.Unlock()
}

func (c *Cache) refreshDone(payload []byte, err error) {
	c.mu.Lock()
	c.refreshing = false
	c.refreshHandle = 0
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("menu bots refresh failed", "error", err)
		return
	}

	reply := gjson.ParseBytes(payload)
	if reply.Get("not_modified").Bool() {
		return
	}

	c.dir.UpsertUsers(reply.Get("users"))

	var bots []Entry
	seen := make(map[int64]bool)
	for _, raw := range reply.Get("bots").Array() {
		id := raw.Get("bot_id").Int()
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		bot, ok := c.dir.ByID(id)
		if !ok || !bot.IsBot || !bot.SupportsAttachMenu {
			// Unresolvable or ineligible entries are dropped silently.
			continue
		}
		if raw.Get("inactive").Bool() {
			// Inactive bots count toward the server-side hash but are
			// hidden from the visible list.
			continue
		}
		bots = append(bots, Entry{
			Bot:       bot,
			ShortName: raw.Get("short_name").String(),
			IconURL:   raw.Get("icon_url").String(),
		})
	}

	hash := reply.Get("hash").Int()
	c.mu.Lock()
	c.bots = bots
	c.hash = hash
	c.mu.Unlock()

	if c.icons != nil {
		for _, e := range bots {
			if e.IconURL != "" {
				go c.icons.Fetch(e.IconURL)
			}
		}
	}

	c.logger.Debug("menu bots updated", "count", len(bots), "hash", hash)
	c.notify()
}

// Subscribe registers for change notifications. Returns a channel that
// receives a signal whenever the bot list is replaced, and a subscription ID
// for later unsubscription. The subscription is automatically cleaned up when
// ctx is cancelled.
func (c *Cache) Subscribe(ctx context.Context) (<-chan struct{}, string) {
	subID := uuid.New().String()
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subscribers[subID] = ch
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Cache) Unsubscribe(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.subscribers[subID]
	if !ok {
		return
	}
	delete(c.subscribers, subID)
	close(ch)
}

// Close shuts down the cache's subscriptions.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for subID, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, subID)
	}
}

// notify signals every subscriber, dropping the signal for full channels.
// Sends stay under the read lock: Unsubscribe closes channels under the write
// lock, so a send can never race a close.
func (c *Cache) notify() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A pending signal already queued; coalesce.
		}
	}
}
