// ABOUTME: Add-to-menu confirmation flow: eligibility check, confirmation, membership toggle.
// ABOUTME: Tracks one outstanding add request at a time; a different bot supersedes it.

package webview

import (
	"github.com/tidwall/gjson"

	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
)

// RequestAddToMenu resolves the bot's attach-menu state, confirms with the
// user if the bot is not yet active in the menu, and toggles membership.
// With a non-nil peer a successful flow continues straight into opening the
// bot's web view there.
func (s *Session) RequestAddToMenu(prompt Prompter, peer *Peer, bot directory.Bot, startCommand string) {
	if !bot.IsBot || !bot.SupportsAttachMenu {
		s.notifier.Notify(noticeMenuUnsupported)
		return
	}

	s.mu.Lock()
	s.addToMenuStart = startCommand
	s.addToMenuPeer = peer
	if s.addToMenuHandle != 0 {
		if s.addToMenuBot != nil && s.addToMenuBot.ID == bot.ID {
			s.mu.Unlock()
			return
		}
		s.gw.Cancel(s.addToMenuHandle)
		s.addToMenuHandle = 0
	}
	b := bot
	s.addToMenuBot = &b
	s.addEpoch++
	epoch := s.addEpoch
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodGetAttachMenuBot, map[string]any{
		"bot": bot.ID,
	}, func(payload []byte, err error) {
		s.addToMenuDone(prompt, epoch, payload, err)
	})

	s.mu.Lock()
	if s.addEpoch == epoch {
		s.addToMenuHandle = h
	} else {
		s.gw.Cancel(h)
	}
	s.mu.Unlock()
}

func (s *Session) addToMenuDone(prompt Prompter, epoch uint64, payload []byte, err error) {
	s.mu.Lock()
	if s.addEpoch != epoch {
		s.mu.Unlock()
		return
	}
	s.addToMenuHandle = 0
	bot := s.addToMenuBot
	contextPeer := s.addToMenuPeer
	startCommand := s.addToMenuStart
	s.addToMenuBot = nil
	s.addToMenuPeer = nil
	s.addToMenuStart = ""
	s.addEpoch++
	s.mu.Unlock()

	if err != nil {
		s.notifier.Notify(noticeMenuUnsupported)
		return
	}
	if bot == nil {
		return
	}

	open := func() bool {
		if contextPeer == nil {
			return false
		}
		s.OpenByBot(nil, *contextPeer, *bot, Button{StartParam: startCommand})
		return true
	}

	reply := gjson.ParseBytes(payload)
	s.dir.UpsertUsers(reply.Get("users"))
	if reply.Get("bot.bot_id").Int() != bot.ID {
		// Reply for some other bot; drop it.
		return
	}

	if reply.Get("bot.inactive").Bool() {
		name := reply.Get("bot.short_name").String()
		if name == "" {
			name = bot.Name
		}
		s.confirmAddToMenu(prompt, *bot, name, open)
		return
	}

	s.menu.Refresh()
	if !open() {
		s.notifier.Notify(noticeAlreadyAdded)
	}
}

// confirmAddToMenu asks the user to confirm adding the bot, then toggles
// membership on and proceeds with the pending open.
func (s *Session) confirmAddToMenu(prompt Prompter, bot directory.Bot, name string, open func() bool) {
	if prompt == nil {
		return
	}
	prompt.ConfirmAddToMenu(name, func() {
		s.toggleInMenu(bot, true, func() {
			open()
			s.notifier.Notify(noticeAddedDone)
		})
	}, func() {
		// Declined; the flow simply ends.
	})
}

// RemoveFromMenu disables the bot in the attach menu.
func (s *Session) RemoveFromMenu(bot directory.Bot) {
	s.toggleInMenu(bot, false, func() {
		s.notifier.Notify(noticeRemovedDone)
	})
}

// toggleInMenu issues the membership toggle. Success refreshes the cache and
// runs done; failure cancels the owning session as a safety fallback.
func (s *Session) toggleInMenu(bot directory.Bot, enabled bool, done func()) {
	s.gw.Call(gateway.MethodToggleBotInMenu, map[string]any{
		"bot":     bot.ID,
		"enabled": enabled,
	}, func(_ []byte, err error) {
		if err != nil {
			s.Cancel()
			return
		}
		s.menu.Refresh()
		if done != nil {
			done()
		}
	})
}
