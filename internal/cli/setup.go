// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - First-run wizard for lollms-cli.
//
// Walks through server address, API key, and binding/model selection, and
// writes the configuration file.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/jeranaias/lollms-cli/internal/config"
	"github.com/jeranaias/lollms-cli/internal/lollms"
)

func runSetup(args Args) int {
	fmt.Println(TitleStyle.Render("lollms-cli setup"))

	cfg, err := config.Load()
	if err != nil {
		// A broken config file should not block re-running setup.
		cfg = config.Default()
	}

	reader := bufio.NewReader(os.Stdin)

	// Server address.
	host := promptLine(reader, "Server URL", cfg.Server.Host)
	cfg.Server.Host = strings.TrimRight(host, "/")

	// API key, read without echo when stdin is a terminal.
	apiKey := promptSecret(reader, "API key (empty for none)")
	if apiKey != "" {
		cfg.Server.APIKey = apiKey
	}

	// Probe the server before asking anything model-related.
	client := lollms.NewClient(&lollms.ClientConfig{
		BaseURL: cfg.Server.Host,
		APIKey:  cfg.Server.APIKey,
		Timeout: 10 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	switch {
	case err != nil:
		fmt.Println(WarningStyle.Render("Could not reach the server: ") + err.Error())
		fmt.Println(DimStyle.Render("Saving the configuration anyway; check the server and re-run setup."))
	case !health.IsOK():
		fmt.Println(WarningStyle.Render("Server responded but reports status " + health.Status + "."))
	default:
		fmt.Println(SuccessStyle.Render("Server is reachable."))
		chooseBinding(ctx, reader, client, cfg)
	}

	if err := config.Save(cfg); err != nil {
		printError(err)
		return 1
	}

	path, _ := config.ConfigPath()
	fmt.Println(SuccessStyle.Render("Configuration saved: ") + path)
	return 0
}

// chooseBinding offers the server's bindings and models as numbered lists.
// Skipping either keeps the server defaults.
func chooseBinding(ctx context.Context, reader *bufio.Reader, client *lollms.Client, cfg *config.Config) {
	bindings, err := client.ListBindings(ctx)
	if err != nil || len(bindings) == 0 {
		return
	}

	fmt.Println(SectionStyle.Render("Active bindings"))
	for i, b := range bindings {
		fmt.Printf("  %d) %s\n", i+1, b)
	}
	choice := promptLine(reader, "Binding (number, empty = server default)", "")
	idx, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || idx < 1 || idx > len(bindings) {
		return
	}
	cfg.Server.BindingName = bindings[idx-1]

	models, err := client.ListModels(ctx, cfg.Server.BindingName)
	if err != nil || len(models) == 0 {
		return
	}
	fmt.Println(SectionStyle.Render("Models for " + cfg.Server.BindingName))
	for i, m := range models {
		fmt.Printf("  %d) %s\n", i+1, m.Name)
	}
	choice = promptLine(reader, "Model (number, empty = binding default)", "")
	idx, err = strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || idx < 1 || idx > len(models) {
		return
	}
	cfg.Server.ModelName = models[idx-1].Name
}

// promptLine asks for one line with a default shown in brackets.
func promptLine(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

// promptSecret reads a line without echo when stdin is a terminal, falling
// back to a normal read otherwise (pipes, tests).
func promptSecret(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
