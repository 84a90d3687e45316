// ABOUTME: Tests for the in-memory bot directory.
// ABOUTME: Covers upsert replacement, case-insensitive lookup and payload parsing.

package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDirectory_UpsertAndLookup(t *testing.T) {
	d := New()
	d.Upsert(Bot{ID: 1, Username: "Alpha_Bot", Name: "Alpha", IsBot: true})

	byID, ok := d.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "Alpha", byID.Name)

	byName, ok := d.ByUsername("alpha_bot")
	require.True(t, ok)
	assert.Equal(t, int64(1), byName.ID)

	_, ok = d.ByUsername("unknown")
	assert.False(t, ok)
}

func TestDirectory_UpsertReplacesWholesale(t *testing.T) {
	d := New()
	d.Upsert(Bot{ID: 1, Username: "old_name", Name: "Old"})
	d.Upsert(Bot{ID: 1, Username: "new_name", Name: "New", Verified: true})

	b, ok := d.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "New", b.Name)
	assert.True(t, b.Verified)

	// The stale username index entry is gone.
	_, ok = d.ByUsername("old_name")
	assert.False(t, ok)
	_, ok = d.ByUsername("NEW_NAME")
	assert.True(t, ok)
}

func TestDirectory_UpsertIgnoresZeroID(t *testing.T) {
	d := New()
	d.Upsert(Bot{Username: "ghost"})

	_, ok := d.ByUsername("ghost")
	assert.False(t, ok)
}

func TestParseUser(t *testing.T) {
	payload := gjson.Parse(`{
		"id": 7,
		"username": "shop_bot",
		"name": "Shop",
		"verified": true,
		"bot": true,
		"attach_menu_enabled": true,
		"menu_button": {"url": "https://shop", "text": "Open Shop"}
	}`)

	b := ParseUser(payload)

	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, "shop_bot", b.Username)
	assert.True(t, b.Verified)
	assert.True(t, b.IsBot)
	assert.True(t, b.SupportsAttachMenu)
	assert.Equal(t, "https://shop", b.MenuButtonURL)
	assert.Equal(t, "Open Shop", b.MenuButtonText)
}

func TestDirectory_UpsertUsers(t *testing.T) {
	d := New()
	users := gjson.Parse(`[
		{"id": 1, "username": "a_bot", "bot": true},
		{"id": 2, "username": "b_bot", "bot": true}
	]`)

	d.UpsertUsers(users)

	_, ok := d.ByUsername("a_bot")
	assert.True(t, ok)
	_, ok = d.ByUsername("b_bot")
	assert.True(t, ok)
}
