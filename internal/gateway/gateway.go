// ABOUTME: Remote call gateway boundary: named async calls with best-effort cancellation.
// ABOUTME: Defines the Caller interface, call handles, wire error codes and classifiers.

package gateway

import (
	"errors"
	"fmt"
)

// Method names for the remote calls this module issues.
const (
	MethodResolveUsername      = "resolveUsername"
	MethodGetAttachMenuBots    = "getAttachMenuBots"
	MethodGetAttachMenuBot     = "getAttachMenuBot"
	MethodToggleBotInMenu      = "toggleBotInAttachMenu"
	MethodRequestWebView       = "requestWebView"
	MethodRequestSimpleWebView = "requestSimpleWebView"
	MethodRequestMenuWebView   = "requestWebViewFromMenuButton"
	MethodProlongWebView       = "prolongWebView"
	MethodSendWebViewData      = "sendWebViewData"
)

// Wire error codes the remote service is known to return.
const (
	CodeUsernameNotFound = "USERNAME_NOT_FOUND"
	CodeBotInvalid       = "BOT_INVALID"
	CodeMenuUnsupported  = "MENU_UNSUPPORTED"
)

// ErrClosed is returned to pending callbacks when the gateway shuts down.
var ErrClosed = errors.New("gateway closed")

// Handle identifies one in-flight call. Zero means "no call".
type Handle uint64

// Error is a remote call failure as reported by the service.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote call failed: %s (%s)", e.Code, e.Message)
}

// IsNotFound reports whether err is a username-resolution miss.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeUsernameNotFound
}

// IsBotInvalid reports whether the service rejected the bot as web-view capable.
func IsBotInvalid(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeBotInvalid
}

// Caller issues named remote calls. Call returns immediately; done is invoked
// exactly once with either a payload or an error, unless the call is cancelled
// first. After Cancel the callback never fires, even if the remote side still
// completes the call (unconditional local void, best-effort remote cancel).
type Caller interface {
	Call(method string, params map[string]any, done func(payload []byte, err error)) Handle
	Cancel(h Handle)
}
