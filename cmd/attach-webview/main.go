// ABOUTME: Entry point for the attach-webview session manager CLI
// ABOUTME: Drives menu listing, web-view opening and attach-menu membership from a terminal

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/attach-webview/internal/botmenu"
	"github.com/2389/attach-webview/internal/config"
	"github.com/2389/attach-webview/internal/directory"
	"github.com/2389/attach-webview/internal/gateway"
	"github.com/2389/attach-webview/internal/media"
	"github.com/2389/attach-webview/internal/trust"
	"github.com/2389/attach-webview/internal/webview"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the attach-webview config file.
// Priority: ATTACHVIEW_CONFIG env var > XDG_CONFIG_HOME/attach-webview/config.yaml > ~/.config/attach-webview/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ATTACHVIEW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "attach-webview", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: attach-webview <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  menu                       List attach-menu bots")
		fmt.Println("  open <peer> <username>     Open a bot web view in a conversation")
		fmt.Println("  add <peer> <username>      Add a bot to the attach menu")
		fmt.Println("  remove <username>          Remove a bot from the attach menu")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "menu":
		err = runMenu(ctx)
	case "open":
		err = runOpen(ctx, os.Args[2:])
	case "add":
		err = runAdd(ctx, os.Args[2:])
	case "remove":
		err = runRemove(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired-up collaborators behind one session manager.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *gateway.Client
	store    *trust.SQLiteStore
	dir      *directory.Directory
	menu     *botmenu.Cache
	registry *webview.Registry
	session  *webview.Session
	term     *terminal
}

func newApp(_ context.Context) (*app, error) {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting attach-webview",
		"version", version,
		"config", configPath,
		"gateway", cfg.Gateway.URL,
	)

	client, err := gateway.Dial(cfg.Gateway.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting gateway: %w", err)
	}

	store, err := trust.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening trust store: %w", err)
	}

	dir := directory.New()
	var icons botmenu.Icons
	if cfg.Media.IconCacheDir != "" {
		icons = media.NewLoader(cfg.Media.IconCacheDir, logger)
	}
	menu := botmenu.New(client, dir, icons, logger)
	registry := webview.NewRegistry(logger)
	term := newTerminal()

	session := webview.NewSession(webview.Config{
		Gateway:         client,
		Trust:           store,
		Directory:       dir,
		Menu:            menu,
		Registry:        registry,
		Opener:          term,
		Notifier:        term,
		UserDataPath:    cfg.WebView.UserDataDir,
		ProlongInterval: cfg.WebView.ProlongInterval,
		Logger:          logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		store:    store,
		dir:      dir,
		menu:     menu,
		registry: registry,
		session:  session,
		term:     term,
	}, nil
}

func (a *app) close() {
	a.registry.ClearAll()
	a.menu.Close()
	a.store.Close()
	a.client.Close()
}

func runMenu(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	updates, _ := a.menu.Subscribe(ctx)
	a.menu.Refresh()

	select {
	case <-updates:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return fmt.Errorf("menu refresh timed out")
	}

	bots := a.menu.Bots()
	if len(bots) == 0 {
		fmt.Println("No attach-menu bots.")
		return nil
	}
	green := color.New(color.FgGreen)
	for _, b := range bots {
		green.Print("  ▶ ")
		fmt.Printf("%s (@%s)\n", b.ShortName, b.Bot.Username)
	}
	return nil
}

func runOpen(ctx context.Context, args []string) error {
	peer, username, err := peerAndUsername(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	startParam := ""
	if len(args) > 2 {
		startParam = args[2]
	}
	a.session.OpenByUsername(a.term, peer, username, startParam)
	a.term.wait(ctx)
	return nil
}

func runAdd(ctx context.Context, args []string) error {
	peer, username, err := peerAndUsername(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	bot, err := a.lookupBot(ctx, username)
	if err != nil {
		return err
	}
	a.session.RequestAddToMenu(a.term, &peer, bot, "")
	a.term.wait(ctx)
	return nil
}

func runRemove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: attach-webview remove <username>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	bot, err := a.lookupBot(ctx, strings.TrimPrefix(args[0], "@"))
	if err != nil {
		return err
	}
	a.session.RemoveFromMenu(bot)
	a.term.wait(ctx)
	return nil
}

// lookupBot refreshes the menu so the directory knows the bot, then resolves
// the username locally.
func (a *app) lookupBot(ctx context.Context, username string) (directory.Bot, error) {
	if bot, ok := a.dir.ByUsername(username); ok {
		return bot, nil
	}
	updates, _ := a.menu.Subscribe(ctx)
	a.menu.Refresh()
	select {
	case <-updates:
	case <-ctx.Done():
		return directory.Bot{}, ctx.Err()
	case <-time.After(15 * time.Second):
	}
	bot, ok := a.dir.ByUsername(username)
	if !ok {
		return directory.Bot{}, fmt.Errorf("unknown bot: @%s", username)
	}
	return bot, nil
}

func peerAndUsername(args []string) (webview.Peer, string, error) {
	if len(args) < 2 {
		return webview.Peer{}, "", fmt.Errorf("usage: attach-webview <command> <peer> <username>")
	}
	var peerID int64
	if _, err := fmt.Sscanf(args[0], "%d", &peerID); err != nil {
		return webview.Peer{}, "", fmt.Errorf("invalid peer id %q", args[0])
	}
	return webview.Peer{ID: peerID}, strings.TrimPrefix(args[1], "@"), nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
