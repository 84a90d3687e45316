// ABOUTME: Shared fakes and fixtures for webview session tests.
// ABOUTME: Fake panel opener, notifier and prompter plus a wired test session.

package webview

import (
	"sync"
	"time"

	"github.com/2389/attach-webview/internal/botmenu"
	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
	"github.com/2389/attach-webview/internal/trust"
)

type fakePanel struct {
	mu        sync.Mutex
	params    PanelParams
	activated int
	closed    int
}

func (p *fakePanel) RequestActivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activated++
}

func (p *fakePanel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

// userClose simulates the user closing the panel, which fires the session's
// close handler.
func (p *fakePanel) userClose() {
	if p.params.Close != nil {
		p.params.Close()
	}
}

func (p *fakePanel) activations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activated
}

type fakeOpener struct {
	mu     sync.Mutex
	panels []*fakePanel
}

func (o *fakeOpener) Open(params PanelParams) (Panel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePanel{params: params}
	o.panels = append(o.panels, p)
	return p, nil
}

func (o *fakeOpener) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.panels)
}

func (o *fakeOpener) last() *fakePanel {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.panels) == 0 {
		return nil
	}
	return o.panels[len(o.panels)-1]
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, text)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	copy(out, n.notices)
	return out
}

type promptRequest struct {
	name    string
	accept  func()
	dismiss func()
}

type fakePrompter struct {
	mu       sync.Mutex
	openAsks []promptRequest
	addAsks  []promptRequest
}

func (f *fakePrompter) ConfirmOpenWebView(botName string, accept, dismiss func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openAsks = append(f.openAsks, promptRequest{botName, accept, dismiss})
}

func (f *fakePrompter) ConfirmAddToMenu(botName string, accept, dismiss func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addAsks = append(f.addAsks, promptRequest{botName, accept, dismiss})
}

func (f *fakePrompter) lastOpenAsk() *promptRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.openAsks) == 0 {
		return nil
	}
	return &f.openAsks[len(f.openAsks)-1]
}

func (f *fakePrompter) lastAddAsk() *promptRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.addAsks) == 0 {
		return nil
	}
	return &f.addAsks[len(f.addAsks)-1]
}

func (f *fakePrompter) openAskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.openAsks)
}

// noCancelGateway drops Cancel requests, simulating a remote side whose
// replies still arrive after local cancellation.
type noCancelGateway struct {
	*gateway.MockGateway
}

func (g *noCancelGateway) Cancel(gateway.Handle) {}

// inlineGateway completes every call before Call returns, the interleaving a
// real connection produces when the read loop dispatches the reply first.
type inlineGateway struct {
	mu        sync.Mutex
	nextID    gateway.Handle
	replies   map[string]string
	cancelled []gateway.Handle
}

func (g *inlineGateway) Call(method string, params map[string]any, done func(payload []byte, err error)) gateway.Handle {
	g.mu.Lock()
	g.nextID++
	h := g.nextID
	reply := g.replies[method]
	g.mu.Unlock()
	done([]byte(reply), nil)
	return h
}

func (g *inlineGateway) Cancel(h gateway.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, h)
}

func (g *inlineGateway) cancels() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelled)
}

type fixture struct {
	gw       *gateway.MockGateway
	trust    *trust.MemoryStore
	dir      *directory.Directory
	menu     *botmenu.Cache
	registry *Registry
	opener   *fakeOpener
	notifier *fakeNotifier
	prompt   *fakePrompter
	session  *Session
}

func newFixture() *fixture {
	f := &fixture{
		gw:       gateway.NewMockGateway(),
		trust:    trust.NewMemoryStore(),
		dir:      directory.New(),
		opener:   &fakeOpener{},
		notifier: &fakeNotifier{},
		prompt:   &fakePrompter{},
	}
	f.menu = botmenu.New(f.gw, f.dir, nil, nil)
	f.registry = NewRegistry(nil)
	f.session = NewSession(Config{
		Gateway:         f.gw,
		Trust:           f.trust,
		Directory:       f.dir,
		Menu:            f.menu,
		Registry:        f.registry,
		Opener:          f.opener,
		Notifier:        f.notifier,
		UserDataPath:    "/tmp/webview-test",
		ProlongInterval: 20 * time.Millisecond,
	})
	return f
}

// newFixtureNoCancel builds a fixture whose gateway ignores cancellation, so
// late replies reach the session's own guards.
func newFixtureNoCancel() *fixture {
	f := newFixture()
	wrapped := &noCancelGateway{f.gw}
	f.session = NewSession(Config{
		Gateway:         wrapped,
		Trust:           f.trust,
		Directory:       f.dir,
		Menu:            f.menu,
		Registry:        f.registry,
		Opener:          f.opener,
		Notifier:        f.notifier,
		ProlongInterval: 20 * time.Millisecond,
	})
	return f
}

func aliceBot() directory.Bot {
	return directory.Bot{
		ID:                 101,
		Username:           "alice_bot",
		Name:               "Alice",
		IsBot:              true,
		SupportsAttachMenu: true,
	}
}
