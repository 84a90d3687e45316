// ABOUTME: Boundary interfaces for the web-view panel, user notices and prompts.
// ABOUTME: The orchestrator drives these collaborators; it never renders anything itself.

package webview

// Panel is the handle of an open web-view panel. Its lifetime bounds the
// session's Open state: the orchestrator activates it for idempotent re-open
// and learns the user closed it through the Close callback in PanelParams.
type Panel interface {
	RequestActivate()
	Close()
}

// PanelParams carries everything the panel collaborator needs to display a
// web view for one session.
type PanelParams struct {
	URL          string
	UserDataPath string
	Title        string
	Bottom       string

	// HandleLocalURI is consulted for navigation targets; returning true
	// means the URI was handled outside the panel and the session ends.
	HandleLocalURI func(uri string) bool
	// SendData forwards payloads submitted by the web content.
	SendData func(data []byte)
	// Close is invoked when the user closes the panel.
	Close func()
	// ThemeParams returns the current theme as a JSON document.
	ThemeParams func() []byte
}

// PanelOpener opens web-view panels.
type PanelOpener interface {
	Open(params PanelParams) (Panel, error)
}

// Notifier shows fire-and-forget user-visible notices.
type Notifier interface {
	Notify(text string)
}

// Prompter presents confirmation dialogs. Exactly one of accept or dismiss is
// invoked, asynchronously, once the user chooses.
type Prompter interface {
	ConfirmOpenWebView(botName string, accept, dismiss func())
	ConfirmAddToMenu(botName string, accept, dismiss func())
}

// Button carries the request-time parameters of one open attempt: target URL
// (empty means data mode), start parameter and display text. Constructed per
// request, consumed once.
type Button struct {
	URL        string
	StartParam string
	Text       string
}
