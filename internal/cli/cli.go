// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for lollms-cli.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/lollms-cli/internal/app"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdGenerate
	CmdCommitMsg
	CmdContext
	CmdDiscussions
	CmdBindings
	CmdModels
	CmdStatus
	CmdConfig
	CmdSetup
	CmdHistory
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Yes     bool // skip the oversized-prompt confirmation

	// Command-specific
	Query      string
	Subcommand string
	Staged     bool

	// Raw args remaining after flag parsing
	Raw []string

	// Options holds command-specific named options (e.g. --binding)
	Options map[string]string
}

const usageText = `lollms-cli - command-line client for lollms-server

Talk to a self-hosted lollms-server: chat with discussion history, generate
code with curated file context, and write commit messages from diffs.

Usage:
  lollms-cli                         Start interactive chat (default)
  lollms-cli chat                    Interactive chat
  lollms-cli generate "request"      One-shot code generation with context
  lollms-cli commit-msg              Commit message from the working diff
    --staged                         Use the staged diff instead
  lollms-cli context [subcommand]    Manage the context file set
  lollms-cli discussions [subcommand] Manage saved discussions
  lollms-cli bindings                List active server bindings
  lollms-cli models <binding>        List models for a binding
  lollms-cli status, s               Show server and local status
  lollms-cli config [show|path]      Show configuration
  lollms-cli setup                   First-run wizard
  lollms-cli history [n]             Show recent generations
  lollms-cli version                 Show version

Context Commands:
  lollms-cli context list            List files in the context set
  lollms-cli context add <path>...   Add files
  lollms-cli context add-dir <dir>   Add every file under a directory
  lollms-cli context remove <path>   Remove a file
  lollms-cli context clear           Empty the set
  lollms-cli context show            Render the context and report its size

Discussion Commands:
  lollms-cli discussions list        List saved discussions
  lollms-cli discussions delete <id> Delete a discussion
  lollms-cli discussions export <id> Print a discussion as Markdown

Interactive Commands (during chat):
  /new                Start a new discussion
  /switch <id>        Switch to a discussion
  /list               List discussions
  /delete <id>        Delete a discussion
  /title <text>       Rename the current discussion
  /context            Show the context set and its size
  /add <path>         Add a file to the context set
  /remove <path>      Remove a file from the context set
  /clear-context      Empty the context set
  /help, /h           Show available commands
  /quit, /q           Exit chat
  Ctrl+C              Cancel current generation
  Ctrl+D              Exit chat

Global Flags:
  -q, --quiet     Minimal output
  -v, --verbose   Debug output
  -y, --yes       Send oversized prompts without asking

Environment:
  LOLLMS_HOST, LOLLMS_API_KEY, LOLLMS_BINDING, LOLLMS_MODEL override the
  configuration file.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("lollms-cli version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments and returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	// No command defaults to interactive chat.
	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "generate", "gen":
		parsed.Query = strings.Join(parseNamedOptions(&parsed, remaining), " ")
		return CmdGenerate, parsed

	case "commit-msg", "commit":
		parseNamedOptions(&parsed, remaining)
		return CmdCommitMsg, parsed

	case "context", "ctx":
		parseSubcommand(&parsed, remaining)
		return CmdContext, parsed

	case "discussions", "discussion", "d":
		parseSubcommand(&parsed, remaining)
		return CmdDiscussions, parsed

	case "bindings":
		return CmdBindings, parsed

	case "models":
		parseSubcommand(&parsed, remaining)
		return CmdModels, parsed

	case "status", "s":
		return CmdStatus, parsed

	case "config":
		parseSubcommand(&parsed, remaining)
		return CmdConfig, parsed

	case "setup":
		return CmdSetup, parsed

	case "history":
		parseSubcommand(&parsed, remaining)
		return CmdHistory, parsed

	case "version", "--version", "-V":
		return CmdVersion, parsed

	case "help", "--help", "-h":
		return CmdHelp, parsed

	default:
		// Unknown first token opens chat with it as the first message.
		parsed.Query = strings.Join(append([]string{cmd}, remaining...), " ")
		return CmdChat, parsed
	}
}

// parseGlobalFlags strips global flags from the argument list.
func parseGlobalFlags(argv []string) ([]string, Args) {
	parsed := Args{Options: make(map[string]string)}
	var remaining []string

	for _, arg := range argv {
		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "-y", "--yes":
			parsed.Yes = true
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsed
}

// parseSubcommand pulls the first positional as the subcommand and the rest
// as raw args, collecting --name value options along the way.
func parseSubcommand(parsed *Args, remaining []string) {
	rest := parseNamedOptions(parsed, remaining)
	if len(rest) > 0 {
		parsed.Subcommand = strings.ToLower(rest[0])
		parsed.Raw = rest[1:]
	} else {
		parsed.Subcommand = ""
		parsed.Raw = nil
	}
}

// parseNamedOptions collects --name[=value] pairs into parsed.Options and
// returns the positional arguments.
func parseNamedOptions(parsed *Args, remaining []string) []string {
	var positional []string
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			parsed.Options[name[:eq]] = name[eq+1:]
			continue
		}
		if name == "staged" {
			parsed.Staged = true
			continue
		}
		if i+1 < len(remaining) && !strings.HasPrefix(remaining[i+1], "--") {
			parsed.Options[name] = remaining[i+1]
			i++
		} else {
			parsed.Options[name] = "true"
		}
	}
	return positional
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes the parsed command and returns a process exit code.
func Run(cmd Command, args Args) int {
	switch cmd {
	case CmdHelp:
		PrintUsage()
		return 0
	case CmdVersion:
		PrintVersion()
		return 0
	case CmdSetup:
		return runSetup(args)
	}

	a, err := app.New(app.Options{})
	if err != nil {
		printError(err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CmdChat:
		return runChat(ctx, a, args)
	case CmdGenerate:
		return runGenerate(ctx, a, args)
	case CmdCommitMsg:
		return runCommitMsg(ctx, a, args)
	case CmdContext:
		return runContext(ctx, a, args)
	case CmdDiscussions:
		return runDiscussions(a, args)
	case CmdBindings:
		return runBindings(ctx, a)
	case CmdModels:
		return runModels(ctx, a, args)
	case CmdStatus:
		return runStatus(ctx, a)
	case CmdConfig:
		return runConfig(a, args)
	case CmdHistory:
		return runHistory(ctx, a, args)
	default:
		PrintUsage()
		return 2
	}
}

// printError writes a styled error line to stderr.
func printError(err error) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
}
