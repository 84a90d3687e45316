// ABOUTME: In-memory directory of known bot users, indexed by ID and username.
// ABOUTME: Stands in for the peer/user storage layer consulted before remote resolution.

package directory

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Bot is the locally known identity of a bot user. Immutable once stored;
// replaced wholesale on upsert.
type Bot struct {
	ID                 int64
	Username           string
	Name               string
	Verified           bool
	IsBot              bool
	SupportsAttachMenu bool
	MenuButtonURL      string
	MenuButtonText     string
}

// Directory is an in-memory user store. Safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	byID       map[int64]Bot
	byUsername map[string]int64 // folded username -> ID
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{
		byID:       make(map[int64]Bot),
		byUsername: make(map[string]int64),
	}
}

// Upsert stores or replaces the given bots.
func (d *Directory) Upsert(bots ...Bot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range bots {
		if b.ID == 0 {
			continue
		}
		if prev, ok := d.byID[b.ID]; ok && prev.Username != "" {
			delete(d.byUsername, strings.ToLower(prev.Username))
		}
		d.byID[b.ID] = b
		if b.Username != "" {
			d.byUsername[strings.ToLower(b.Username)] = b.ID
		}
	}
}

// ByID looks a bot up by its stable identifier.
func (d *Directory) ByID(id int64) (Bot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.byID[id]
	return b, ok
}

// ByUsername looks a bot up case-insensitively by username.
func (d *Directory) ByUsername(username string) (Bot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byUsername[strings.ToLower(username)]
	if !ok {
		return Bot{}, false
	}
	b, ok := d.byID[id]
	return b, ok
}

// ParseUser decodes one user object from a reply payload.
func ParseUser(user gjson.Result) Bot {
	return Bot{
		ID:                 user.Get("id").Int(),
		Username:           user.Get("username").String(),
		Name:               user.Get("name").String(),
		Verified:           user.Get("verified").Bool(),
		IsBot:              user.Get("bot").Bool(),
		SupportsAttachMenu: user.Get("attach_menu_enabled").Bool(),
		MenuButtonURL:      user.Get("menu_button.url").String(),
		MenuButtonText:     user.Get("menu_button.text").String(),
	}
}

// UpsertUsers parses and stores every entry of a "users" payload array.
func (d *Directory) UpsertUsers(users gjson.Result) {
	for _, u := range users.Array() {
		d.Upsert(ParseUser(u))
	}
}
