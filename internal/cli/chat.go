// chat.go - Interactive chat command handler for the personachat CLI.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles the default "personachat" invocation, which provides an
// interactive REPL for conversing with the current persona.
//
// Interactive Commands (during chat):
//
//	/help, /h           Show available commands
//	/persona [id]       Show or switch persona
//	/personas           List available personas
//	/clear [all]        Clear the current persona's conversation (or all)
//	/history            Show conversation history
//	/export [format]    Export conversations (json or md)
//	/import <file>      Import a JSON export
//	/login              Authenticate for admin operations
//	/logout             Drop the admin session
//	/settings [f v]     Show config, or edit the persona (admin only)
//	/quit, /q           Exit chat
//	Ctrl+C              Cancel the in-flight request
//	Ctrl+D              Exit chat
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/jeranaias/personachat/internal/auth"
	"github.com/jeranaias/personachat/internal/config"
	"github.com/jeranaias/personachat/internal/export"
	"github.com/jeranaias/personachat/internal/gateway"
	"github.com/jeranaias/personachat/internal/model"
	"github.com/jeranaias/personachat/internal/storage"
	"github.com/jeranaias/personachat/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	// Get history file path in config directory
	configDir, err := config.ConfigDir()
	if err != nil {
		// Fallback to temp directory if config dir unavailable
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "chat_history")

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}

	cli.LoadHistory()

	return cli
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	// Add non-empty input to history
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}

	return input, nil
}

// SaveHistory persists input history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	// SECURITY: owner read/write only - prompts may contain sensitive text
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	Store   *storage.ConversationStore
	Gateway *gateway.Client
	Auth    *auth.Client
	Config  *config.Config

	// PersonaID is the active persona. It mirrors the stored current
	// persona and is kept in sync on every switch.
	PersonaID string

	// Tracking
	StartTime time.Time
	TurnCount int

	// Cancel function for the in-flight request
	CancelFunc context.CancelFunc

	// Input history handler
	// USABILITY: Provides readline-like input with history
	InputCLI *ChatCLI
}

// NewChatSession creates a new chat session against the given core components.
func NewChatSession(store *storage.ConversationStore, gw *gateway.Client, authClient *auth.Client, cfg *config.Config) *ChatSession {
	personaID := store.CurrentPersonaID()

	return &ChatSession{
		Store:     store,
		Gateway:   gw,
		Auth:      authClient,
		Config:    cfg,
		PersonaID: personaID,
		StartTime: time.Now(),
		InputCLI:  NewChatCLI(),
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// RunChat runs the interactive REPL until the user exits.
func RunChat(session *ChatSession) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	printWelcome(session)

	// Ensure input history is saved on exit
	defer session.InputCLI.Close()

	// Set up signal handling for graceful Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			// First Ctrl+C cancels the in-flight request
			if session.CancelFunc != nil {
				session.CancelFunc()
				session.CancelFunc = nil
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	// Main REPL loop using liner for input history
	for {
		prompt := PersonaStyle.Render(session.personaName()) + promptStyle.Render(" > ")
		input, err := session.InputCLI.ReadInput(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C at the prompt - exit gracefully
				fmt.Println()
				printExitSummary(session)
				return nil
			}
			// EOF (Ctrl+D) or other error - exit gracefully
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)

		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n",
					ErrorStyle.Render("[Error]"),
					err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		// Handle exit/quit without slash
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		// Process the message
		if err := processMessage(session, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s\n",
				ErrorStyle.Render("[Error]"),
				describeError(err))
		}
	}
}

// personaName returns the display name of the active persona.
func (s *ChatSession) personaName() string {
	return s.Store.PersonaConfig(s.PersonaID).DisplayName
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one user turn through the gateway and displays the
// reply. Both sides of the turn are persisted only after the reply arrives:
// a failed turn is shown inline and never written to the durable log, so the
// history sent on the next attempt is exactly what the user saw succeed.
func processMessage(session *ChatSession, input string) error {
	// Create cancellable context so Ctrl+C aborts the request
	ctx, cancel := context.WithCancel(context.Background())
	session.CancelFunc = cancel
	defer func() {
		session.CancelFunc = nil
		cancel()
	}()

	startTime := time.Now()

	fmt.Println() // Space before reply

	reply, err := session.Gateway.Reply(ctx, session.PersonaID, input)
	if err != nil {
		return err
	}

	displayReply(reply, session.Config.UI.RenderMarkdown)
	fmt.Println()

	// Persist the turn only now that it succeeded
	session.Store.AppendMessage(session.PersonaID, model.NewUserMessage(input))
	session.Store.AppendMessage(session.PersonaID, model.NewAssistantMessage(reply))
	session.TurnCount++

	fmt.Fprintf(os.Stderr, "%s %s\n",
		infoStyle.Render("[Stats]"),
		time.Since(startTime).Round(time.Millisecond))

	return nil
}

// describeError turns a gateway or auth error into a one-line message the
// user can act on.
func describeError(err error) string {
	var connErr *gateway.ConnectivityError
	var upErr *gateway.UpstreamError
	var malErr *gateway.MalformedResponseError
	var expErr *auth.AuthExpiredError
	var permErr *auth.PermissionError

	switch {
	case errors.As(err, &connErr):
		return "could not reach the service - check your connection and try again"
	case errors.As(err, &expErr):
		return "admin session expired - run /login to sign in again"
	case errors.As(err, &permErr):
		return "you do not have permission for that operation"
	case errors.As(err, &upErr):
		if upErr.Message != "" {
			return fmt.Sprintf("service error (status %d): %s", upErr.Status, upErr.Message)
		}
		return fmt.Sprintf("service error (status %d)", upErr.Status)
	case errors.As(err, &malErr):
		return "the service returned an unreadable reply - try again"
	default:
		return err.Error()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, session *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?":
		printHelp()
		return true, nil

	case "/persona", "/p":
		return handlePersonaCommand(session, args)

	case "/personas":
		printPersonaList(session)
		return true, nil

	case "/clear", "/c":
		if len(args) > 0 && strings.EqualFold(args[0], "all") {
			session.Store.ClearAllLogs()
			fmt.Println(commandStyle.Render("[All conversations cleared]"))
			return true, nil
		}
		session.Store.ClearLog(session.PersonaID)
		fmt.Println(commandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/history":
		printHistory(session)
		return true, nil

	case "/export":
		return true, handleExportCommand(session, args)

	case "/import":
		return true, handleImportCommand(session, args)

	case "/login":
		return true, handleLoginCommand(session)

	case "/logout":
		session.Auth.Logout()
		fmt.Println(commandStyle.Render("[Logged out]"))
		return true, nil

	case "/settings":
		return true, handleSettingsCommand(session, args)

	case "/quit", "/q", "/exit":
		return false, nil

	case "/":
		// Just "/" shows help
		printHelp()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handlePersonaCommand handles the /persona command.
func handlePersonaCommand(session *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s Current persona: %s (%s)\n",
			infoStyle.Render("[Persona]"),
			commandStyle.Render(session.personaName()),
			session.PersonaID)
		return true, nil
	}

	newID := strings.ToLower(args[0])
	if !model.IsKnownPersona(newID) {
		fmt.Fprintf(os.Stderr, "%s Persona '%s' is not built in, using it with generic defaults\n",
			warningStyle.Render("[Warning]"),
			newID)
	}

	session.Store.SetCurrentPersonaID(newID)
	session.PersonaID = newID
	fmt.Printf("%s Switched to persona: %s\n",
		commandStyle.Render("[OK]"),
		session.personaName())

	return true, nil
}

// handleExportCommand exports the full snapshot. Format defaults to json.
func handleExportCommand(session *ChatSession, args []string) error {
	format := "json"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}

	snap := session.Store.ExportSnapshot()
	opts := &export.Options{OutputDir: ".", IncludeTimestamps: session.Config.UI.ShowTimestamps}

	var path string
	var err error
	switch format {
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

	fmt.Printf("%s Exported to %s\n", commandStyle.Render("[OK]"), path)
	return nil
}

// handleImportCommand imports a JSON export file.
func handleImportCommand(session *ChatSession, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /import <file.json>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", args[0], err)
	}

	if err := session.Store.ImportSnapshot(data); err != nil {
		var valErr *storage.ValidationError
		if errors.As(err, &valErr) {
			return fmt.Errorf("import rejected, nothing was changed: %s", valErr.Reason)
		}
		return err
	}

	fmt.Printf("%s Imported %s\n", commandStyle.Render("[OK]"), args[0])
	return nil
}

// handleSettingsCommand shows the active configuration, or edits a field of
// the active persona when given a field and value. Edits require a live
// admin session: both the process-scoped flag and an unexpired token.
func handleSettingsCommand(session *ChatSession, args []string) error {
	if len(args) == 0 {
		printSettings(session)
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: /settings <field> <value>")
	}

	// SECURITY: A persisted token alone is not enough; the user must have
	// logged in during this process.
	if !session.Store.AdminSession().Authenticated || session.Store.IsAdminTokenExpired() {
		return fmt.Errorf("persona editing requires an admin session - run /login first")
	}

	field := strings.ToLower(args[0])
	value := strings.Join(args[1:], " ")

	cfg := session.Store.PersonaConfig(session.PersonaID)
	switch field {
	case "name", "displayname":
		cfg.DisplayName = value
	case "personality":
		cfg.Personality = value
	case "tone":
		tone, err := strconv.Atoi(value)
		if err != nil || tone < 1 || tone > 10 {
			return fmt.Errorf("tone must be a number from 1 to 10")
		}
		cfg.Tone = tone
	case "prompt", "systemprompt":
		cfg.SystemPrompt = value
	case "model":
		cfg.Model = value
	default:
		return fmt.Errorf("unknown field: %s (use name, personality, tone, prompt, or model)", field)
	}

	if !session.Store.SavePersonaConfig(session.PersonaID, cfg) {
		return fmt.Errorf("could not save persona settings")
	}

	fmt.Printf("%s %s.%s updated\n",
		commandStyle.Render("[OK]"),
		session.PersonaID,
		field)
	return nil
}

// handleLoginCommand prompts for the admin passcode and logs in.
// SECURITY: The passcode is read without echo and never printed.
func handleLoginCommand(session *ChatSession) error {
	if err := RequiresTTY("enter the passcode"); err != nil {
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

	if err := session.Auth.Login(ctx, string(passcode)); err != nil {
		return err
	}

	fmt.Println(commandStyle.Render("[OK] Logged in as admin"))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(session *ChatSession) {
	cfg := session.Store.PersonaConfig(session.PersonaID)

	fmt.Println()
	fmt.Println(welcomeStyle.Render("personachat"))
	fmt.Println(RenderSeparator(30))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Persona:"),
		commandStyle.Render(cfg.DisplayName))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(effectiveModel(cfg, session.Config)))

	if session.Config.Storage.Ephemeral {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Storage:"),
			warningStyle.Render("Ephemeral (nothing persists past this session)"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// effectiveModel resolves the model used for a persona's requests.
func effectiveModel(persona model.PersonaConfig, cfg *config.Config) string {
	if persona.Model != "" {
		return persona.Model
	}
	if cfg.Chat.Model != "" {
		return cfg.Chat.Model
	}
	return model.DefaultModel
}

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(TitleStyle.Render("Available Commands"))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/persona [id]", "Show or switch persona"},
		{"/personas", "List available personas"},
		{"/clear [all]", "Clear this persona's conversation (or all)"},
		{"/history", "Show conversation history"},
		{"/export [json|md]", "Export conversations"},
		{"/import <file>", "Import a JSON export"},
		{"/login", "Authenticate for admin operations"},
		{"/logout", "Drop the admin session"},
		{"/settings [field value]", "Show config, or edit the persona (admin)"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-18s", c.cmd)),
			infoStyle.Render(c.desc))
	}
	fmt.Println()
}

// printPersonaList lists the built-in personas with the active one marked.
func printPersonaList(session *ChatSession) {
	fmt.Println()
	for _, id := range model.KnownPersonaIDs() {
		cfg := session.Store.PersonaConfig(id)
		marker := "  "
		if id == session.PersonaID {
			marker = commandStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s\n",
			marker,
			PersonaStyle.Render(fmt.Sprintf("%-12s", id)),
			infoStyle.Render(util.TruncateRunes(util.CollapseNewlines(cfg.Personality), 60)))
	}
	fmt.Println()
}

// printHistory shows the persisted conversation for the active persona.
func printHistory(session *ChatSession) {
	msgs := session.Store.Log(session.PersonaID)
	if len(msgs) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	for _, msg := range msgs {
		label := "You"
		style := promptStyle
		if msg.Role == model.RoleAssistant {
			label = session.personaName()
			style = PersonaStyle
		}
		if session.Config.UI.ShowTimestamps && !msg.Timestamp.IsZero() {
			fmt.Printf("%s %s\n", style.Render(label+":"), DimStyle.Render(msg.Timestamp.Format("15:04:05")))
		} else {
			fmt.Printf("%s\n", style.Render(label+":"))
		}
		fmt.Println(WrapText(msg.Text, GetTerminalWidth()))
		fmt.Println()
	}
}

// printSettings shows the active configuration values.
func printSettings(session *ChatSession) {
	cfg := session.Config
	dataDir, _ := cfg.DataDir()
	fmt.Println()
	rows := []struct {
		label string
		value string
	}{
		{"Completion URL", cfg.Endpoints.CompletionURL},
		{"Auth URL", cfg.Endpoints.AuthURL},
		{"Data dir", dataDir},
		{"Request timeout", fmt.Sprintf("%ds", cfg.Chat.RequestTimeoutSecs)},
		{"Theme", cfg.UI.Theme},
		{"Markdown", fmt.Sprintf("%t", cfg.UI.RenderMarkdown)},
	}
	for _, r := range rows {
		fmt.Printf("%s %s\n", LabelStyle.Render(r.label), r.value)
	}
	fmt.Println()
}

// printExitSummary prints a short session summary on exit.
func printExitSummary(session *ChatSession) {
	if session.TurnCount == 0 {
		return
	}
	fmt.Printf("%s %d turns in %s\n",
		infoStyle.Render("[Session]"),
		session.TurnCount,
		time.Since(session.StartTime).Round(time.Second))
}
