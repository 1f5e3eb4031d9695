// cli.go - Command parsing and handlers for personachat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/jeranaias/personachat/internal/auth"
	"github.com/jeranaias/personachat/internal/config"
	"github.com/jeranaias/personachat/internal/export"
	"github.com/jeranaias/personachat/internal/gateway"
	"github.com/jeranaias/personachat/internal/kvstore"
	"github.com/jeranaias/personachat/internal/model"
	"github.com/jeranaias/personachat/internal/storage"
	"github.com/jeranaias/personachat/internal/util"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `personachat - persona-based AI chat for the terminal

Usage:
  personachat                      Start interactive chat (default)
  personachat chat                 Same as above
  personachat personas             List available personas
  personachat export               Export conversations
    --format json|md               Export format (default: json)
    --out DIR                      Output directory (default: .)
  personachat import <file>        Import a JSON export
  personachat config get <key>     Show a configuration value
  personachat config set <key> <value>  Change a configuration value
  personachat config list          Show all configuration values
  personachat login                Authenticate for admin operations
  personachat logout               Drop the admin session
  personachat wipe --confirm       Delete all local data
  personachat version              Show version
  personachat help                 Show this help

Global flags:
  --ephemeral                      Keep everything in memory for this run

Environment:
  PERSONACHAT_COMPLETION_URL       Override the completion endpoint
  PERSONACHAT_AUTH_URL             Override the auth endpoint
  PERSONACHAT_DATA_DIR             Override the data directory
  NO_COLOR                         Disable colored output
`

// =============================================================================
// CORE WIRING
// =============================================================================

// core bundles the components every command operates on.
type core struct {
	Config  *config.Config
	Store   *storage.ConversationStore
	Gateway *gateway.Client
	Auth    *auth.Client
}

// buildCore loads configuration and constructs the store and clients.
// With --ephemeral (or storage.ephemeral in config) the substrate is
// in-memory and nothing outlives the process.
func buildCore(parser *ArgParser) (*core, error) {
	cfg := config.Global()

	ephemeral := cfg.Storage.Ephemeral || parser.BoolFlag("ephemeral")

	var kv kvstore.Store
	if ephemeral {
		kv = kvstore.NewMemoryStore()
	} else {
		dataDir, err := cfg.DataDir()
		var fs *kvstore.FileStore
		if err == nil {
			fs, err = kvstore.NewFileStore(dataDir)
		}
		if err != nil {
			// RELIABILITY: An unusable data directory degrades to an
			// ephemeral session instead of refusing to start.
			log.Printf("data directory unavailable, falling back to in-memory storage: %v", err)
			kv = kvstore.NewMemoryStore()
		} else {
			kv = fs
		}
	}

	store := storage.New(kv)
	gw := gateway.New(cfg.Endpoints.CompletionURL, store).
		WithTimeout(time.Duration(cfg.Chat.RequestTimeoutSecs) * time.Second).
		WithModelOverride(cfg.Chat.Model)
	authClient := auth.New(cfg.Endpoints.AuthURL, store)

	return &core{
		Config:  cfg,
		Store:   store,
		Gateway: gw,
		Auth:    authClient,
	}, nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run parses argv and executes the selected command.
// It returns the process exit code.
func Run(argv []string) int {
	parser := NewArgParser(argv)

	switch parser.Subcommand() {
	case "", "chat":
		return exitCode(runChatCommand(parser))
	case "personas":
		return exitCode(runPersonasCommand(parser))
	case "export":
		return exitCode(runExportCommand(parser))
	case "import":
		return exitCode(runImportCommand(parser))
	case "config":
		return exitCode(runConfigCommand(parser))
	case "login":
		return exitCode(runLoginCommand(parser))
	case "logout":
		return exitCode(runLogoutCommand(parser))
	case "wipe":
		return exitCode(runWipeCommand(parser))
	case "version", "--version", "-v":
		printVersion()
		return 0
	case "help", "--help", "-h":
		fmt.Print(usageText)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", parser.Subcommand())
		fmt.Print(usageText)
		return 1
	}
}

// exitCode maps a handler error to a process exit code, printing the error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", RenderConditional(ErrorStyle, "Error:"), describeError(err))
	return 1
}

func printVersion() {
	fmt.Printf("personachat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// runChatCommand starts the interactive REPL. The config watcher keeps the
// session's settings current while it runs.
func runChatCommand(parser *ArgParser) error {
	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	session := NewChatSession(c.Store, c.Gateway, c.Auth, c.Config)

	// Pick up config edits made while chatting (theme, markdown, timeouts)
	watcher, err := config.NewWatcher(func(cfg *config.Config) {
		session.Config = cfg
	})
	if err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		}
	}

	return RunChat(session)
}

// runPersonasCommand lists the built-in personas.
func runPersonasCommand(parser *ArgParser) error {
	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	current := c.Store.CurrentPersonaID()
	for _, id := range model.KnownPersonaIDs() {
		cfg := c.Store.PersonaConfig(id)
		marker := " "
		if id == current {
			marker = "*"
		}
		preview := util.TruncateRunes(util.CollapseNewlines(cfg.Personality), 60)
		fmt.Printf("%s %-12s %-18s %s\n", marker, id, cfg.DisplayName, preview)
	}
	return nil
}

// runExportCommand writes the full snapshot to a file.
func runExportCommand(parser *ArgParser) error {
	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	snap := c.Store.ExportSnapshot()
	opts := &export.Options{
		OutputDir:         parser.FlagOrDefault("out", "."),
		IncludeTimestamps: c.Config.UI.ShowTimestamps,
	}

	var path string
	switch format := strings.ToLower(parser.FlagOrDefault("format", "json")); format {
	case "json":
		path, err = export.ExportJSON(snap, opts)
	case "md", "markdown":
		path, err = export.ExportMarkdown(snap, opts)
	default:
		return fmt.Errorf("unknown export format: %s (use json or md)", format)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Exported to %s\n", path)
	return nil
}

// runImportCommand merges a JSON export into local storage.
func runImportCommand(parser *ArgParser) error {
	file := parser.Positional(1)
	if file == "" {
		return fmt.Errorf("usage: personachat import <file.json>")
	}

	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", file, err)
	}

	if err := c.Store.ImportSnapshot(data); err != nil {
		return err
	}

	fmt.Printf("Imported %s\n", file)
	return nil
}

// runConfigCommand handles config get/set/list/path.
func runConfigCommand(parser *ArgParser) error {
	cfg := config.Global()

	switch parser.Positional(1) {
	case "get":
		key := parser.Positional(2)
		if key == "" {
			return fmt.Errorf("usage: personachat config get <key>")
		}
		value, err := cfg.Get(key)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "set":
		key := parser.Positional(2)
		value := strings.Join(parser.PositionalFrom(3), " ")
		if key == "" || value == "" {
			return fmt.Errorf("usage: personachat config set <key> <value>")
		}
		// Edit a copy: a value that fails validation must not leave the
		// in-process config half-changed.
		edited := cfg.Clone()
		if err := edited.Set(key, value); err != nil {
			return err
		}
		if err := edited.Validate(); err != nil {
			return err
		}
		if err := config.Save(edited); err != nil {
			return err
		}
		config.SetGlobal(edited)
		fmt.Printf("%s = %s\n", key, value)
		return nil

	case "list", "":
		for _, key := range config.GetAllKeys() {
			value, err := cfg.Get(key)
			if err != nil {
				continue
			}
			fmt.Printf("%-28s %v\n", key, value)
		}
		return nil

	case "path":
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s (use get, set, list, or path)", parser.Positional(1))
	}
}

// runLoginCommand prompts for the admin passcode and logs in.
// SECURITY: The passcode is read without echo and never printed or logged.
func runLoginCommand(parser *ArgParser) error {
	if err := RequiresTTY("enter the passcode"); err != nil {
		return err
	}

	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	fmt.Print("Admin passcode: ")
	passcode, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read passcode: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Auth.Login(ctx, string(passcode)); err != nil {
		return err
	}

	_, expiry := c.Store.AdminToken()
	fmt.Printf("%s Logged in as admin (valid until %s)\n",
		RenderConditional(SuccessStyle, "[OK]"),
		expiry.Local().Format("2006-01-02 15:04"))
	return nil
}

// runLogoutCommand drops the admin session locally.
func runLogoutCommand(parser *ArgParser) error {
	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	c.Auth.Logout()
	fmt.Println("Logged out")
	return nil
}

// runWipeCommand deletes all local data. Requires --confirm.
func runWipeCommand(parser *ArgParser) error {
	if !parser.BoolFlag("confirm") {
		return fmt.Errorf("this deletes all conversations, persona settings, and the admin session; re-run with --confirm")
	}

	c, err := buildCore(parser)
	if err != nil {
		return err
	}

	c.Store.ClearEverything()
	fmt.Println("All local data deleted")
	return nil
}
