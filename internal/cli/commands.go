// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Handlers for the non-interactive lollms-cli commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/lollms-cli/internal/app"
	"github.com/jeranaias/lollms-cli/internal/budget"
	"github.com/jeranaias/lollms-cli/internal/config"
	"github.com/jeranaias/lollms-cli/internal/contextset"
	"github.com/jeranaias/lollms-cli/internal/store"
)

// =============================================================================
// GENERATE
// =============================================================================

func runGenerate(ctx context.Context, a *app.App, args Args) int {
	if strings.TrimSpace(args.Query) == "" {
		printError(errors.New("generate needs a request, e.g. lollms-cli generate \"a binary search in Go\""))
		return 2
	}

	code, err := a.GenerateCode(ctx, args.Query, sizeGate(args))
	if err != nil {
		if errors.Is(err, budget.ErrAborted) {
			fmt.Println(DimStyle.Render("Aborted."))
			return 1
		}
		printError(err)
		return 1
	}

	// Raw code on stdout so the output can be piped into a file.
	fmt.Println(code)
	return 0
}

// =============================================================================
// COMMIT MESSAGE
// =============================================================================

func runCommitMsg(ctx context.Context, a *app.App, args Args) int {
	msg, err := a.CommitMessage(ctx, args.Staged, sizeGate(args))
	if err != nil {
		if errors.Is(err, budget.ErrAborted) {
			fmt.Println(DimStyle.Render("Aborted."))
			return 1
		}
		printError(err)
		return 1
	}

	fmt.Println(msg)
	return 0
}

// =============================================================================
// CONTEXT SET
// =============================================================================

func runContext(ctx context.Context, a *app.App, args Args) int {
	files := a.Files()

	switch args.Subcommand {
	case "", "list", "ls":
		paths := files.Paths()
		if len(paths) == 0 {
			fmt.Println(DimStyle.Render("Context set is empty."))
			return 0
		}
		fmt.Println(TitleStyle.Render(fmt.Sprintf("Context files (%d)", len(paths))))
		for _, p := range paths {
			fmt.Println("  " + p)
		}
		return 0

	case "add":
		if len(args.Raw) == 0 {
			printError(errors.New("context add needs at least one path"))
			return 2
		}
		added := 0
		for _, p := range args.Raw {
			ok, err := files.Add(p)
			if err != nil {
				printError(err)
				return 1
			}
			if ok {
				added++
			} else if !args.Quiet {
				fmt.Println(DimStyle.Render("already present: " + p))
			}
		}
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("Added %d file(s).", added)))
		return 0

	case "add-dir":
		if len(args.Raw) == 0 {
			printError(errors.New("context add-dir needs a directory"))
			return 2
		}
		collected, err := contextset.CollectFiles(ctx, args.Raw[0], a.Config().Context.IgnorePatterns)
		if err != nil {
			printError(err)
			return 1
		}
		added, err := files.AddMany(collected)
		if err != nil {
			printError(err)
			return 1
		}
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("Added %d of %d file(s).", added, len(collected))))
		return 0

	case "remove", "rm":
		if len(args.Raw) == 0 {
			printError(errors.New("context remove needs a path"))
			return 2
		}
		removed, err := files.Remove(args.Raw[0])
		if err != nil {
			printError(err)
			return 1
		}
		if !removed {
			fmt.Println(DimStyle.Render("not in context set: " + args.Raw[0]))
			return 1
		}
		fmt.Println(SuccessStyle.Render("Removed."))
		return 0

	case "clear":
		if err := files.Clear(); err != nil {
			printError(err)
			return 1
		}
		fmt.Println(SuccessStyle.Render("Context set cleared."))
		return 0

	case "show":
		return printContextReport(ctx, a)

	default:
		printError(fmt.Errorf("unknown context subcommand: %s", args.Subcommand))
		return 2
	}
}

// printContextReport renders the context and reports size and skips.
func printContextReport(ctx context.Context, a *app.App) int {
	fc, err := a.BuildContext(ctx)
	if err != nil {
		printError(err)
		return 1
	}

	fmt.Println(TitleStyle.Render("Context"))
	fmt.Println(LabelStyle.Render("Files:") + ValueStyle.Render(strconv.Itoa(fc.IncludedFiles)))
	fmt.Println(LabelStyle.Render("Characters:") + ValueStyle.Render(strconv.Itoa(fc.CharCount)))
	fmt.Println(LabelStyle.Render("Est. tokens:") + ValueStyle.Render("~"+strconv.Itoa(fc.EstimatedTokens)))
	fmt.Println(LabelStyle.Render("Server limit:") + ValueStyle.Render(strconv.Itoa(a.Estimator().Limit(ctx))+" tokens"))

	if len(fc.Skipped) > 0 {
		fmt.Println(SectionStyle.Render("Skipped"))
		for _, s := range fc.Skipped {
			fmt.Println("  " + WarningStyle.Render(s.String()))
		}
	}
	return 0
}

// =============================================================================
// DISCUSSIONS
// =============================================================================

func runDiscussions(a *app.App, args Args) int {
	s := a.Store()

	switch args.Subcommand {
	case "", "list", "ls":
		metas := s.List()
		if len(metas) == 0 {
			fmt.Println(DimStyle.Render("No saved discussions."))
			return 0
		}
		fmt.Print(store.FormatDiscussionList(metas, s.ActiveID()))
		return 0

	case "delete", "rm":
		if len(args.Raw) == 0 {
			printError(errors.New("discussions delete needs an id"))
			return 2
		}
		if !confirmDelete(args, args.Raw[0]) {
			fmt.Println(DimStyle.Render("Not deleted."))
			return 0
		}
		if err := s.Delete(args.Raw[0]); err != nil {
			printError(err)
			return 1
		}
		fmt.Println(SuccessStyle.Render("Deleted."))
		return 0

	case "export":
		if len(args.Raw) == 0 {
			printError(errors.New("discussions export needs an id"))
			return 2
		}
		md, err := s.ExportMarkdown(args.Raw[0])
		if err != nil {
			printError(err)
			return 1
		}
		fmt.Print(md)
		return 0

	default:
		printError(fmt.Errorf("unknown discussions subcommand: %s", args.Subcommand))
		return 2
	}
}

// =============================================================================
// SERVER INTROSPECTION
// =============================================================================

func runBindings(ctx context.Context, a *app.App) int {
	bindings, err := a.Client().ListBindings(ctx)
	if err != nil {
		printError(err)
		return 1
	}
	if len(bindings) == 0 {
		fmt.Println(DimStyle.Render("No active bindings."))
		return 0
	}
	fmt.Println(TitleStyle.Render("Active bindings"))
	for _, b := range bindings {
		fmt.Println("  " + b)
	}
	return 0
}

func runModels(ctx context.Context, a *app.App, args Args) int {
	binding := args.Subcommand
	if binding == "" {
		binding = a.Config().Server.BindingName
	}
	if binding == "" {
		printError(errors.New("models needs a binding name (or set server.binding_name in the config)"))
		return 2
	}

	models, err := a.Client().ListModels(ctx, binding)
	if err != nil {
		printError(err)
		return 1
	}
	if len(models) == 0 {
		fmt.Println(DimStyle.Render("No models for binding " + binding + "."))
		return 0
	}
	fmt.Println(TitleStyle.Render("Models for " + binding))
	for _, m := range models {
		fmt.Println("  " + m.Name)
	}
	return 0
}

func runStatus(ctx context.Context, a *app.App) int {
	s := a.Status(ctx)

	fmt.Println(TitleStyle.Render("lollms-cli status"))
	fmt.Println(LabelStyle.Render("Server:") + ValueStyle.Render(s.Host))

	switch {
	case !s.Configured:
		fmt.Println(LabelStyle.Render("State:") + ErrorStyle.Render("not configured") +
			DimStyle.Render("  (run: lollms-cli setup)"))
	case !s.Reachable:
		fmt.Println(LabelStyle.Render("State:") + ErrorStyle.Render("unreachable"))
	case !s.Healthy:
		fmt.Println(LabelStyle.Render("State:") + WarningStyle.Render("unhealthy"))
	default:
		fmt.Println(LabelStyle.Render("State:") + SuccessStyle.Render("ok"))
		if s.Version != "" {
			fmt.Println(LabelStyle.Render("Version:") + ValueStyle.Render(s.Version))
		}
		fmt.Println(LabelStyle.Render("Context limit:") + ValueStyle.Render(strconv.Itoa(s.ContextLimit)+" tokens"))
	}

	fmt.Println(LabelStyle.Render("Discussions:") + ValueStyle.Render(strconv.Itoa(s.Discussions)))
	fmt.Println(LabelStyle.Render("Context files:") + ValueStyle.Render(strconv.Itoa(s.ContextFiles)))
	return 0
}

// =============================================================================
// CONFIG
// =============================================================================

func runConfig(a *app.App, args Args) int {
	cfg := a.Config()

	switch args.Subcommand {
	case "", "show":
		fmt.Println(TitleStyle.Render("Configuration"))
		fmt.Println(LabelStyle.Render("Host:") + ValueStyle.Render(cfg.Server.Host))
		fmt.Println(LabelStyle.Render("API key:") + ValueStyle.Render(maskSecret(cfg.Server.APIKey)))
		fmt.Println(LabelStyle.Render("Binding:") + ValueStyle.Render(orDefault(cfg.Server.BindingName, "(server default)")))
		fmt.Println(LabelStyle.Render("Model:") + ValueStyle.Render(orDefault(cfg.Server.ModelName, "(binding default)")))
		fmt.Println(LabelStyle.Render("Timeout:") + ValueStyle.Render(strconv.Itoa(cfg.Server.TimeoutSecs)+"s"))
		fmt.Println(LabelStyle.Render("Temperature:") + ValueStyle.Render(strconv.FormatFloat(cfg.Generation.Temperature, 'f', -1, 64)))
		fmt.Println(LabelStyle.Render("Max tokens:") + ValueStyle.Render(strconv.Itoa(cfg.Generation.MaxTokens)))
		fmt.Println(LabelStyle.Render("Warn above:") + ValueStyle.Render(strconv.Itoa(cfg.Context.WarningThresholdChars)+" chars"))
		return 0

	case "path":
		path, err := config.ConfigPath()
		if err != nil {
			printError(err)
			return 1
		}
		fmt.Println(path)
		return 0

	default:
		printError(fmt.Errorf("unknown config subcommand: %s", args.Subcommand))
		return 2
	}
}

// maskSecret hides all but the last 4 characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// =============================================================================
// HISTORY
// =============================================================================

func runHistory(ctx context.Context, a *app.App, args Args) int {
	log := a.History()
	if log == nil {
		fmt.Println(DimStyle.Render("History is disabled."))
		return 0
	}

	n := 20
	if args.Subcommand != "" {
		parsed, err := strconv.Atoi(args.Subcommand)
		if err != nil || parsed <= 0 {
			printError(fmt.Errorf("history takes a positive count, got %q", args.Subcommand))
			return 2
		}
		n = parsed
	}

	entries, err := log.Recent(ctx, n)
	if err != nil {
		printError(err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println(DimStyle.Render("No generations recorded yet."))
		return 0
	}

	fmt.Println(TitleStyle.Render("Recent generations"))
	for _, e := range entries {
		status := SuccessStyle.Render("ok")
		if !e.Success {
			status = ErrorStyle.Render(orDefault(e.ErrorType, "error"))
		}
		fmt.Printf("  %s  %-8s  ~%d tokens  %dms  %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Flow, e.EstTokens, e.DurationMS, status)
	}
	return 0
}
