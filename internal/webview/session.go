// ABOUTME: State machine for one bot web-view session: resolve, consent, request, show, keep-alive, teardown.
// ABOUTME: At most one active session per instance; per-kind single-flight call slots; idempotent cancel.

package webview

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/attach-webview/internal/botmenu"
	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
	"github.com/2389/attach-webview/internal/trust"
)

// DefaultProlongInterval is the keep-alive period for open sessions.
const DefaultProlongInterval = 60 * time.Second

// State is the session's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateAwaitingConsent
	StateRequesting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateAwaitingConsent:
		return "awaiting-consent"
	case StateRequesting:
		return "requesting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Peer is the conversation context a web view is opened for.
type Peer struct {
	ID int64
}

const (
	noticeMenuUnsupported = "This bot isn't supported in the attachment menu."
	noticeAlreadyAdded    = "This bot is already in your attachment menu."
	noticeAddedDone       = "Bot added to your attachment menu."
	noticeRemovedDone     = "Bot removed from your attachment menu."
)

// Config wires a Session's collaborators.
type Config struct {
	Gateway   gateway.Caller
	Trust     trust.Store
	Directory *directory.Directory
	Menu      *botmenu.Cache
	Registry  *Registry
	Opener    PanelOpener
	Notifier  Notifier

	UserDataPath    string
	ProlongInterval time.Duration        // defaults to DefaultProlongInterval
	ThemeParams     func() []byte        // defaults to "{}"
	HandleLocalURI  func(uri string) bool
	Logger          *slog.Logger
}

// Session manages one bot web-view at a time for its owning conversation
// context. It cycles Idle <-> active states for its entire lifetime; a new
// open request supersedes (and cancels) whatever came before it.
//
// All gateway and prompt callbacks are voided by an epoch counter: teardown
// bumps the epoch, so late replies for a superseded session are no-ops.
type Session struct {
	gw       gateway.Caller
	trust    trust.Store
	dir      *directory.Directory
	menu     *botmenu.Cache
	registry *Registry
	opener   PanelOpener
	notifier Notifier
	logger   *slog.Logger

	userDataPath    string
	prolongInterval time.Duration
	themeParams     func() []byte
	handleLocalURI  func(uri string) bool

	mu          sync.Mutex
	epoch       uint64
	state       State
	peer        *Peer
	bot         *directory.Bot
	botUsername string
	startParam  string
	buttonText  string
	queryID     uint64
	panel       Panel

	requestHandle   gateway.Handle
	requestSeq      uint64
	requestInFlight bool
	prolongHandle   gateway.Handle
	prolongInFlight bool
	prolongStop     chan struct{}

	addEpoch        uint64
	addToMenuHandle gateway.Handle
	addToMenuBot    *directory.Bot
	addToMenuPeer   *Peer
	addToMenuStart  string
}

// NewSession creates an idle Session.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.ProlongInterval
	if interval <= 0 {
		interval = DefaultProlongInterval
	}
	theme := cfg.ThemeParams
	if theme == nil {
		theme = func() []byte { return []byte("{}") }
	}
	return &Session{
		gw:              cfg.Gateway,
		trust:           cfg.Trust,
		dir:             cfg.Directory,
		menu:            cfg.Menu,
		registry:        cfg.Registry,
		opener:          cfg.Opener,
		notifier:        cfg.Notifier,
		logger:          logger.With("component", "webview"),
		userDataPath:    cfg.UserDataPath,
		prolongInterval: interval,
		themeParams:     theme,
		handleLocalURI:  cfg.HandleLocalURI,
	}
}

// State returns the session's current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OpenByUsername opens a bot's web view in the given conversation, resolving
// the bot by username first. Repeating the call with the same peer, username
// (case-insensitive) and start parameter while the panel is open only
// re-activates the panel.
func (s *Session) OpenByUsername(prompt Prompter, peer Peer, username, startParam string) {
	if username == "" {
		return
	}

	s.mu.Lock()
	current := s.botUsername
	if s.bot != nil {
		current = s.bot.Username
	}
	if s.peer != nil && *s.peer == peer &&
		strings.EqualFold(current, username) &&
		s.startParam == startParam {
		panel := s.panel
		s.mu.Unlock()
		if panel != nil {
			panel.RequestActivate()
		}
		return
	}
	oldPanel := s.cancelLocked()
	s.peer = &peer
	s.botUsername = username
	s.startParam = startParam
	s.state = StateResolving
	epoch := s.epoch
	s.mu.Unlock()

	if oldPanel != nil {
		oldPanel.Close()
	}
	s.resolve(prompt, epoch, username)
}

// OpenByBot opens a bot's web view in the given conversation. A nil prompt
// means the caller is already trusted (programmatic path) and consent gating
// is skipped. Re-invoking with the same peer and bot while the panel is open
// re-activates it; while the request is still in flight it is a no-op.
func (s *Session) OpenByBot(prompt Prompter, peer Peer, bot directory.Bot, button Button) {
	s.mu.Lock()
	if s.peer != nil && *s.peer == peer && s.bot != nil && s.bot.ID == bot.ID {
		if s.panel != nil {
			panel := s.panel
			s.mu.Unlock()
			panel.RequestActivate()
			return
		}
		if s.requestHandle != 0 {
			s.mu.Unlock()
			return
		}
	}
	oldPanel := s.cancelLocked()
	b := bot
	s.bot = &b
	s.peer = &peer
	epoch := s.epoch
	s.mu.Unlock()

	if oldPanel != nil {
		oldPanel.Close()
	}
	if prompt == nil {
		s.requestWebView(epoch, button)
		return
	}
	s.confirmOpen(prompt, epoch, func() {
		s.requestWebView(epoch, button)
	})
}

// OpenSimple opens a bot's web view in the bot's own chat using the simple
// request variant, which carries no query identifier.
func (s *Session) OpenSimple(prompt Prompter, bot directory.Bot, button Button) {
	s.mu.Lock()
	oldPanel := s.cancelLocked()
	b := bot
	s.bot = &b
	s.peer = &Peer{ID: bot.ID}
	epoch := s.epoch
	s.mu.Unlock()

	if oldPanel != nil {
		oldPanel.Close()
	}
	s.confirmOpen(prompt, epoch, func() {
		s.requestSimple(epoch, button)
	})
}

// OpenFromMenuButton opens the bot's own menu-button web view.
func (s *Session) OpenFromMenuButton(prompt Prompter, bot directory.Bot) {
	s.mu.Lock()
	oldPanel := s.cancelLocked()
	b := bot
	s.bot = &b
	s.peer = &Peer{ID: bot.ID}
	epoch := s.epoch
	s.mu.Unlock()

	if oldPanel != nil {
		oldPanel.Close()
	}
	s.confirmOpen(prompt, epoch, func() {
		s.requestFromMenuButton(epoch, bot.MenuButtonURL, bot.MenuButtonText)
	})
}

// resolve looks the bot up locally first and falls back to a remote
// resolution call.
func (s *Session) resolve(prompt Prompter, epoch uint64, username string) {
	if bot, ok := s.dir.ByUsername(username); ok {
		s.resolved(prompt, epoch, bot)
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	seq := s.beginRequestLocked()
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodResolveUsername, map[string]any{
		"username": username,
	}, func(payload []byte, err error) {
		s.resolveDone(prompt, epoch, username, payload, err)
	})
	s.storeRequestHandle(epoch, seq, h)
}

func (s *Session) resolveDone(prompt Prompter, epoch uint64, username string, payload []byte, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.requestHandle = 0
	s.requestInFlight = false
	s.mu.Unlock()

	if err != nil {
		if gateway.IsNotFound(err) {
			s.notifier.Notify(fmt.Sprintf("Bot @%s not found.", username))
		}
		s.Cancel()
		return
	}

	s.dir.UpsertUsers(gjson.ParseBytes(payload).Get("users"))
	bot, ok := s.dir.ByUsername(username)
	if !ok || !bot.IsBot {
		s.notifier.Notify(noticeMenuUnsupported)
		s.Cancel()
		return
	}
	s.resolved(prompt, epoch, bot)
}

func (s *Session) resolved(prompt Prompter, epoch uint64, bot directory.Bot) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	b := bot
	s.bot = &b
	s.state = StateAwaitingConsent
	startParam := s.startParam
	s.mu.Unlock()

	s.confirmOpen(prompt, epoch, func() {
		s.requestWebView(epoch, Button{StartParam: startParam})
	})
}

// confirmOpen runs the consent gate: platform-verified or already-trusted
// bots proceed immediately, anything else needs the user's explicit
// confirmation, which is then persisted. With no prompter available an
// untrusted bot cannot be confirmed and the session never starts.
func (s *Session) confirmOpen(prompt Prompter, epoch uint64, done func()) {
	s.mu.Lock()
	if s.epoch != epoch || s.bot == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateAwaitingConsent
	bot := *s.bot
	s.mu.Unlock()

	if bot.Verified {
		done()
		return
	}
	trusted, err := s.trust.IsTrusted(context.Background(), bot.ID)
	if err != nil {
		s.logger.Warn("trust lookup failed", "bot_id", bot.ID, "error", err)
	}
	if trusted {
		done()
		return
	}
	if prompt == nil {
		s.Cancel()
		return
	}

	prompt.ConfirmOpenWebView(bot.Name, func() {
		s.mu.Lock()
		stale := s.epoch != epoch
		s.mu.Unlock()
		if stale {
			return
		}
		if err := s.trust.MarkTrusted(context.Background(), bot.ID); err != nil {
			s.logger.Warn("persisting bot trust failed", "bot_id", bot.ID, "error", err)
		}
		done()
	}, func() {
		s.mu.Lock()
		stale := s.epoch != epoch
		s.mu.Unlock()
		if !stale {
			s.Cancel()
		}
	})
}

// requestWebView issues the primary request-web-view call.
func (s *Session) requestWebView(epoch uint64, button Button) {
	s.mu.Lock()
	if s.epoch != epoch || s.peer == nil || s.bot == nil {
		s.mu.Unlock()
		return
	}
	s.startParam = button.StartParam
	s.buttonText = button.Text
	s.state = StateRequesting
	seq := s.beginRequestLocked()
	params := map[string]any{
		"peer":         s.peer.ID,
		"bot":          s.bot.ID,
		"theme_params": string(s.themeParams()),
	}
	if button.URL != "" {
		params["url"] = button.URL
	}
	if button.StartParam != "" {
		params["start_param"] = button.StartParam
	}
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodRequestWebView, params, func(payload []byte, err error) {
		s.requestDone(epoch, button.Text, payload, err)
	})
	s.storeRequestHandle(epoch, seq, h)
}

// requestSimple issues the simple variant used for self-chat openings.
func (s *Session) requestSimple(epoch uint64, button Button) {
	s.mu.Lock()
	if s.epoch != epoch || s.bot == nil {
		s.mu.Unlock()
		return
	}
	s.buttonText = button.Text
	s.state = StateRequesting
	seq := s.beginRequestLocked()
	params := map[string]any{
		"bot":          s.bot.ID,
		"url":          button.URL,
		"theme_params": string(s.themeParams()),
	}
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodRequestSimpleWebView, params, func(payload []byte, err error) {
		s.requestDone(epoch, button.Text, payload, err)
	})
	s.storeRequestHandle(epoch, seq, h)
}

// requestFromMenuButton issues the menu-button variant.
func (s *Session) requestFromMenuButton(epoch uint64, url, text string) {
	s.mu.Lock()
	if s.epoch != epoch || s.bot == nil {
		s.mu.Unlock()
		return
	}
	s.buttonText = text
	s.state = StateRequesting
	seq := s.beginRequestLocked()
	params := map[string]any{
		"bot":          s.bot.ID,
		"url":          url,
		"theme_params": string(s.themeParams()),
	}
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodRequestMenuWebView, params, func(payload []byte, err error) {
		s.requestDone(epoch, text, payload, err)
	})
	s.storeRequestHandle(epoch, seq, h)
}

// beginRequestLocked marks a new request-kind call as in flight and returns
// its sequence number. Must be called with mu held.
func (s *Session) beginRequestLocked() uint64 {
	s.requestSeq++
	s.requestInFlight = true
	return s.requestSeq
}

// storeRequestHandle keeps the handle only while its call is still the live
// in-flight request. The reply may already have been dispatched, or a newer
// call may have been issued; storing in either case would leave a stale handle
// that a later Cancel would aim at the wrong call.
func (s *Session) storeRequestHandle(epoch, seq uint64, h gateway.Handle) {
	s.mu.Lock()
	if s.epoch == epoch && s.requestSeq == seq && s.requestInFlight {
		s.requestHandle = h
	} else {
		s.gw.Cancel(h)
	}
	s.mu.Unlock()
}

func (s *Session) requestDone(epoch uint64, buttonText string, payload []byte, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.requestHandle = 0
	s.requestInFlight = false
	s.mu.Unlock()

	if err != nil {
		if gateway.IsBotInvalid(err) {
			// The bot may have been removed server-side; refresh the menu.
			s.menu.Refresh()
		}
		s.Cancel()
		return
	}

	reply := gjson.ParseBytes(payload)
	s.show(epoch, reply.Get("query_id").Uint(), reply.Get("url").String(), buttonText)
}

// show hands the URL to the panel collaborator, registers the session and
// arms the keep-alive loop.
func (s *Session) show(epoch uint64, queryID uint64, url, buttonText string) {
	s.mu.Lock()
	if s.epoch != epoch || s.peer == nil || s.bot == nil {
		s.mu.Unlock()
		return
	}
	bot := *s.bot
	s.queryID = queryID
	s.buttonText = buttonText
	s.state = StateOpen
	s.mu.Unlock()

	params := PanelParams{
		URL:          url,
		UserDataPath: s.userDataPath,
		Title:        bot.Name,
		Bottom:       "@" + bot.Username,
		ThemeParams:  s.themeParams,
		SendData:     func(data []byte) { s.SendData(data) },
		Close:        func() { s.Cancel() },
		HandleLocalURI: func(uri string) bool {
			if s.handleLocalURI != nil && s.handleLocalURI(uri) {
				s.Cancel()
				return true
			}
			return false
		},
	}

	panel, err := s.opener.Open(params)
	if err != nil {
		s.logger.Warn("panel open failed", "error", err)
		s.Cancel()
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		panel.Close()
		return
	}
	s.panel = panel
	stop := make(chan struct{})
	s.prolongStop = stop
	// Registered in the same critical section that installs the panel, so a
	// concurrent Cancel either sees both or neither.
	s.registry.Add(s)
	s.mu.Unlock()

	s.logger.Info("web view opened",
		"bot", bot.Username,
		"query_id", queryID,
	)
	go s.prolongLoop(epoch, stop)
}

// prolongLoop issues the periodic keep-alive while the session stays open.
func (s *Session) prolongLoop(epoch uint64, stop chan struct{}) {
	ticker := time.NewTicker(s.prolongInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.prolongTick(epoch)
		}
	}
}

// prolongTick issues one keep-alive call unless the previous one's outcome
// has not been observed yet (single-flight prolongation).
func (s *Session) prolongTick(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateOpen || s.prolongInFlight {
		s.mu.Unlock()
		return
	}
	s.prolongInFlight = true
	params := map[string]any{
		"peer":     s.peer.ID,
		"bot":      s.bot.ID,
		"query_id": s.queryID,
	}
	s.mu.Unlock()

	h := s.gw.Call(gateway.MethodProlongWebView, params, func(_ []byte, err error) {
		s.mu.Lock()
		if s.epoch == epoch {
			s.prolongInFlight = false
			s.prolongHandle = 0
		}
		s.mu.Unlock()
		if err != nil {
			// Keep-alive failures never interrupt an open panel.
			s.logger.Debug("prolong failed, session kept open", "error", err)
		}
	})

	s.mu.Lock()
	if s.epoch == epoch && s.prolongInFlight {
		s.prolongHandle = h
	} else if s.epoch != epoch {
		s.gw.Cancel(h)
	}
	s.mu.Unlock()
}

// HandleResultSent consumes the session-completion signal. A query identifier
// matching this session's own tears it down like an explicit cancel.
func (s *Session) HandleResultSent(queryID uint64) {
	s.mu.Lock()
	match := s.state == StateOpen && queryID != 0 && s.queryID == queryID
	s.mu.Unlock()
	if match {
		s.Cancel()
	}
}

// SendData forwards data submitted by the web content. Only valid in self-chat
// data mode: the peer is the bot itself and no query identifier was issued.
// The session is torn down immediately after the send is dispatched.
func (s *Session) SendData(data []byte) {
	s.mu.Lock()
	if s.peer == nil || s.bot == nil || s.queryID != 0 || s.peer.ID != s.bot.ID {
		s.mu.Unlock()
		return
	}
	botID := s.bot.ID
	buttonText := s.buttonText
	s.mu.Unlock()

	s.gw.Call(gateway.MethodSendWebViewData, map[string]any{
		"bot":         botID,
		"random_id":   randomID(),
		"button_text": buttonText,
		"data":        string(data),
	}, func(_ []byte, err error) {
		if err != nil {
			s.logger.Debug("web view data send failed", "error", err)
		}
	})
	s.Cancel()
}

// Cancel tears the session down from any state: deregisters it, cancels the
// outstanding request and prolongation slots, stops the keep-alive loop,
// releases the panel and clears the target. Idempotent; callable from Idle
// with no effect.
func (s *Session) Cancel() {
	s.mu.Lock()
	panel := s.cancelLocked()
	s.mu.Unlock()

	// Closed outside the lock: the panel's close handler re-enters Cancel,
	// which must observe the already-idle state.
	if panel != nil {
		panel.Close()
	}
}

// cancelLocked clears all session state and returns the panel (if any) for
// the caller to close outside the lock. Must be called with mu held.
func (s *Session) cancelLocked() Panel {
	s.registry.Remove(s)
	if s.requestHandle != 0 {
		s.gw.Cancel(s.requestHandle)
		s.requestHandle = 0
	}
	s.requestInFlight = false
	if s.prolongHandle != 0 {
		s.gw.Cancel(s.prolongHandle)
		s.prolongHandle = 0
	}
	s.prolongInFlight = false
	if s.prolongStop != nil {
		close(s.prolongStop)
		s.prolongStop = nil
	}
	panel := s.panel
	s.panel = nil
	s.peer = nil
	s.bot = nil
	s.botUsername = ""
	s.startParam = ""
	s.buttonText = ""
	s.queryID = 0
	s.state = StateIdle
	s.epoch++
	return panel
}

// randomID returns a non-zero random identifier for one-shot sends.
func randomID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	id := binary.LittleEndian.Uint64(b[:])
	if id == 0 {
		id = 1
	}
	return id
}
