// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering and confirmation prompts.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/lollms-cli/internal/app"
	"github.com/jeranaias/lollms-cli/internal/budget"
)

// renderMarkdown pretty-prints markdown for the terminal. Rendering is best
// effort: on any failure the raw text is returned unchanged.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// sizeGate returns the confirmation callback for oversized prompts, or nil
// when --yes was passed.
func sizeGate(args Args) app.ConfirmFunc {
	if args.Yes {
		return nil
	}
	return func(a budget.Assessment) bool {
		fmt.Println(WarningStyle.Render("Large prompt: ") + a.Summary())
		return askYesNo("Send anyway?")
	}
}

// confirmDelete asks before a discussion is removed. --yes skips the
// question.
func confirmDelete(args Args, id string) bool {
	if args.Yes {
		return true
	}
	return askYesNo("Delete discussion " + id + "?")
}

// askYesNo prompts on stdout and reads one line from stdin. Defaults to no.
func askYesNo(question string) bool {
	fmt.Print(question + " [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
