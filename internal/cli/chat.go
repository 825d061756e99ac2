// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for lollms-cli.
//
// Handles the "lollms-cli chat" command: a REPL over the active discussion
// with slash commands for discussion and context management.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/lollms-cli/internal/app"
	"github.com/jeranaias/lollms-cli/internal/budget"
	"github.com/jeranaias/lollms-cli/internal/config"
	"github.com/jeranaias/lollms-cli/internal/model"
	"github.com/jeranaias/lollms-cli/internal/store"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// chatInput provides input history and line editing for interactive chat.
type chatInput struct {
	line        *liner.State
	historyFile string
}

func newChatInput() *chatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	ci := &chatInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	ci.loadHistory()
	return ci
}

func (ci *chatInput) loadHistory() {
	f, err := os.Open(ci.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	ci.line.ReadHistory(f)
}

func (ci *chatInput) saveHistory() {
	f, err := os.Create(ci.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	ci.line.WriteHistory(f)
}

func (ci *chatInput) Close() {
	ci.saveHistory()
	ci.line.Close()
}

// =============================================================================
// CHAT LOOP
// =============================================================================

func runChat(ctx context.Context, a *app.App, args Args) int {
	input := newChatInput()
	defer input.Close()

	// Config edits take effect mid-session.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go a.WatchConfig(watchCtx)

	if !args.Quiet {
		printChatBanner(a)
	}

	// A query on the command line becomes the first turn.
	if strings.TrimSpace(args.Query) != "" {
		if !chatTurn(ctx, a, args, args.Query) {
			return 1
		}
	}

	for {
		line, err := input.line.Prompt(PromptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println(DimStyle.Render("bye"))
				return 0
			}
			printError(err)
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.line.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			if quit := handleSlashCommand(ctx, a, args, line); quit {
				return 0
			}
			continue
		}

		chatTurn(ctx, a, args, line)
	}
}

// chatTurn sends one message and prints the reply. Returns false on errors
// that should stop a scripted first turn.
func chatTurn(ctx context.Context, a *app.App, args Args, text string) bool {
	msg, err := a.ChatTurn(ctx, text, sizeGate(args))
	if err != nil {
		switch {
		case errors.Is(err, budget.ErrAborted):
			fmt.Println(DimStyle.Render("Not sent."))
		case errors.Is(err, app.ErrGenerationInFlight):
			fmt.Println(WarningStyle.Render("A generation is already running."))
		default:
			printError(err)
		}
		return false
	}

	fmt.Println(AssistantStyle.Render("assistant>"))
	if msg.Kind == model.KindCode {
		fmt.Println(renderMarkdown("```\n" + msg.Content + "\n```"))
	} else {
		fmt.Println(renderMarkdown(msg.Content))
	}
	return true
}

func printChatBanner(a *app.App) {
	d := a.Store().Active()
	fmt.Println(TitleStyle.Render("lollms-cli chat"))
	if d != nil {
		fmt.Println(DimStyle.Render("Discussion: " + d.Title + " (" + d.ID + ")"))
	}
	fmt.Println(DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Println()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one /command. Returns true when chat should exit.
func handleSlashCommand(ctx context.Context, a *app.App, args Args, line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	rest := parts[1:]
	s := a.Store()

	switch cmd {
	case "/quit", "/q", "/exit":
		fmt.Println(DimStyle.Render("bye"))
		return true

	case "/help", "/h":
		printSlashHelp()

	case "/new":
		id, err := s.CreateNew()
		if err != nil {
			printError(err)
			break
		}
		fmt.Println(SuccessStyle.Render("New discussion: ") + id)

	case "/switch":
		if len(rest) == 0 {
			printError(errors.New("/switch needs a discussion id"))
			break
		}
		if err := s.SwitchTo(rest[0]); err != nil {
			printError(err)
			break
		}
		d := s.Active()
		fmt.Println(SuccessStyle.Render("Switched to: ") + d.Title)

	case "/list", "/ls":
		fmt.Print(store.FormatDiscussionList(s.List(), s.ActiveID()))

	case "/delete":
		if len(rest) == 0 {
			printError(errors.New("/delete needs a discussion id"))
			break
		}
		if !confirmDelete(args, rest[0]) {
			fmt.Println(DimStyle.Render("Not deleted."))
			break
		}
		if err := s.Delete(rest[0]); err != nil {
			printError(err)
			break
		}
		fmt.Println(SuccessStyle.Render("Deleted."))

	case "/title":
		if len(rest) == 0 {
			printError(errors.New("/title needs the new title text"))
			break
		}
		title := strings.Join(rest, " ")
		if err := s.UpdateTitle(s.ActiveID(), title); err != nil {
			printError(err)
			break
		}
		fmt.Println(SuccessStyle.Render("Renamed."))

	case "/context", "/ctx":
		printContextReport(ctx, a)

	case "/add":
		if len(rest) == 0 {
			printError(errors.New("/add needs a file path"))
			break
		}
		added, err := a.Files().Add(rest[0])
		if err != nil {
			printError(err)
			break
		}
		if added {
			fmt.Println(SuccessStyle.Render("Added."))
		} else {
			fmt.Println(DimStyle.Render("Already in the context set."))
		}

	case "/remove", "/rm":
		if len(rest) == 0 {
			printError(errors.New("/remove needs a file path"))
			break
		}
		removed, err := a.Files().Remove(rest[0])
		if err != nil {
			printError(err)
			break
		}
		if removed {
			fmt.Println(SuccessStyle.Render("Removed."))
		} else {
			fmt.Println(DimStyle.Render("Not in the context set."))
		}

	case "/clear-context":
		if err := a.Files().Clear(); err != nil {
			printError(err)
			break
		}
		fmt.Println(SuccessStyle.Render("Context set cleared."))

	default:
		fmt.Println(WarningStyle.Render("Unknown command: " + cmd + "  (/help for a list)"))
	}
	return false
}

func printSlashHelp() {
	fmt.Println(SectionStyle.Render("Chat commands"))
	for _, row := range [][2]string{
		{"/new", "start a new discussion"},
		{"/switch <id>", "switch to a discussion"},
		{"/list", "list discussions"},
		{"/delete <id>", "delete a discussion"},
		{"/title <text>", "rename the current discussion"},
		{"/context", "show the context set and its size"},
		{"/add <path>", "add a file to the context set"},
		{"/remove <path>", "remove a file from the context set"},
		{"/clear-context", "empty the context set"},
		{"/quit", "exit chat"},
	} {
		fmt.Printf("  %-18s %s\n", row[0], DimStyle.Render(row[1]))
	}
}
