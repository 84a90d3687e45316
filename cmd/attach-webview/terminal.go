// ABOUTME: Terminal implementations of the panel, notifier and prompter boundaries
// ABOUTME: Prints web-view URLs and notices; reads y/n confirmations from stdin

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/attach-webview/internal/webview"
)

// terminal is a headless stand-in for the UI surfaces: notices and prompts go
// to the console, and "opening a panel" prints the URL for the user to visit.
type terminal struct {
	mu     sync.Mutex
	reader *bufio.Reader
	done   chan struct{}
}

func newTerminal() *terminal {
	return &terminal{
		reader: bufio.NewReader(os.Stdin),
		done:   make(chan struct{}, 4),
	}
}

// wait blocks until a flow reports a user-visible outcome or the context ends.
// Open panels keep their session alive until the process is interrupted.
func (t *terminal) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-t.done:
	}
}

func (t *terminal) signal() {
	select {
	case t.done <- struct{}{}:
	default:
	}
}

// Notify implements webview.Notifier.
func (t *terminal) Notify(text string) {
	yellow := color.New(color.FgYellow)
	yellow.Print("  ! ")
	fmt.Println(text)
	t.signal()
}

// ConfirmOpenWebView implements webview.Prompter.
func (t *terminal) ConfirmOpenWebView(botName string, accept, dismiss func()) {
	go t.confirm(fmt.Sprintf("Allow %s to open a web view? [y/N]: ", botName), accept, dismiss)
}

// ConfirmAddToMenu implements webview.Prompter.
func (t *terminal) ConfirmAddToMenu(botName string, accept, dismiss func()) {
	go t.confirm(fmt.Sprintf("Add %s to your attachment menu? [y/N]: ", botName), accept, dismiss)
}

func (t *terminal) confirm(question string, accept, dismiss func()) {
	t.mu.Lock()
	fmt.Print(question)
	line, err := t.reader.ReadString('\n')
	t.mu.Unlock()

	answer := strings.ToLower(strings.TrimSpace(line))
	if err == nil && (answer == "y" || answer == "yes") {
		accept()
		return
	}
	dismiss()
	t.signal()
}

// Open implements webview.PanelOpener.
func (t *terminal) Open(params webview.PanelParams) (webview.Panel, error) {
	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("%s (%s)\n", params.Title, params.Bottom)
	green.Print("  ▶ ")
	fmt.Printf("web view: %s\n", params.URL)
	return &termPanel{params: params}, nil
}

// termPanel is the terminal's panel handle. The user "closes" it by
// interrupting the process, which drains the registry.
type termPanel struct {
	params webview.PanelParams
	once   sync.Once
}

func (p *termPanel) RequestActivate() {
	fmt.Printf("  (web view already open: %s)\n", p.params.URL)
}

func (p *termPanel) Close() {
	p.once.Do(func() {
		fmt.Printf("  web view closed: %s\n", p.params.Title)
	})
}
