// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextset

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// fenceOverrides pins fence tags for extensions where the lexer registry
// name is not the conventional markdown tag.
var fenceOverrides = map[string]string{
	".sh":   "bash",
	".yml":  "yaml",
	".yaml": "yaml",
	".md":   "markdown",
	".txt":  "",
	".rs":   "rust",
	".kt":   "kotlin",
	".ts":   "typescript",
	".tsx":  "tsx",
	".jsx":  "jsx",
	".h":    "c",
	".hpp":  "cpp",
	".cc":   "cpp",
	".ps1":  "powershell",
}

// GuessLanguageTag guesses the fenced-code-block language tag for a file
// from its name, using the chroma lexer registry. Unknown extensions map to
// an empty tag (untagged fence).
func GuessLanguageTag(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if tag, ok := fenceOverrides[ext]; ok {
		return tag
	}

	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}

	cfg := lexer.Config()
	if cfg == nil {
		return ""
	}
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}
