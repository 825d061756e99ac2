// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the client, stores, and prompt pipeline together and
// owns the single-generation-at-a-time rule every flow goes through.
package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/lollms-cli/internal/budget"
	"github.com/jeranaias/lollms-cli/internal/config"
	"github.com/jeranaias/lollms-cli/internal/contextset"
	"github.com/jeranaias/lollms-cli/internal/gitx"
	"github.com/jeranaias/lollms-cli/internal/history"
	"github.com/jeranaias/lollms-cli/internal/lollms"
	"github.com/jeranaias/lollms-cli/internal/prompt"
	"github.com/jeranaias/lollms-cli/internal/store"
)

// ErrGenerationInFlight is returned when a generation-triggering action is
// requested while another one is still running.
var ErrGenerationInFlight = errors.New("a generation is already in progress")

// =============================================================================
// APP
// =============================================================================

// App is the composition root. One instance lives for the whole process.
type App struct {
	cfg     *config.Config
	cfgPath string

	client    *lollms.Client
	store     *store.DiscussionStore
	files     *contextset.FileSet
	assembler *contextset.Assembler
	estimator *budget.Estimator
	builder   *prompt.Builder
	log       *history.Log
	repo      *gitx.Repo

	// cfgMu guards cfg and the derived components during reloads
	cfgMu sync.RWMutex

	// genMu guards the in-flight flag
	genMu      sync.Mutex
	generating bool
}

// Options tweak construction for non-default environments (tests).
type Options struct {
	// ConfigPath overrides the default config file location
	ConfigPath string

	// DataDir overrides the directory for discussions, context state, and
	// the history database
	DataDir string

	// DisableHistory skips opening the SQLite generation log
	DisableHistory bool

	// WorkDir is the working directory for git operations
	WorkDir string
}

// New loads the configuration and builds a fully wired App.
func New(opts Options) (*App, error) {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadFromPath(cfgPath)
	if err != nil {
		return nil, err
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir, err = config.ConfigDir()
		if err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		client:  lollms.NewClient(clientConfig(cfg)),
		repo:    gitx.NewRepo(opts.WorkDir),
	}

	chatsDir := cfg.Discussions.SaveFolder
	if !filepath.IsAbs(chatsDir) {
		chatsDir = filepath.Join(dataDir, chatsDir)
	}
	a.store = store.NewDiscussionStore(chatsDir, cfg.Discussions.MaxDiscussions)
	if err := a.store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load discussions: %w", err)
	}

	a.files = contextset.NewFileSet(filepath.Join(dataDir, "context.json"))
	if err := a.files.Load(); err != nil {
		return nil, fmt.Errorf("failed to load context set: %w", err)
	}

	a.assembler = contextset.NewAssembler(
		cfg.Context.IncludeFileHeaders,
		cfg.Context.MaxFileBytes,
		cfg.Context.CharsPerToken,
	)
	a.estimator = budget.NewEstimator(a.client,
		cfg.Context.WarningThresholdChars, cfg.Context.CharsPerToken)
	a.builder = &prompt.Builder{
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	}

	if !opts.DisableHistory {
		log, err := history.Open(filepath.Join(dataDir, "history.db"))
		if err != nil {
			// History is an amenity; run without it rather than fail startup.
			log = nil
		}
		a.log = log
	}

	return a, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.log != nil {
		return a.log.Close()
	}
	return nil
}

// clientConfig derives the client settings from the loaded config.
func clientConfig(cfg *config.Config) *lollms.ClientConfig {
	cc := lollms.DefaultConfig()
	cc.BaseURL = cfg.Server.Host
	cc.APIKey = cfg.Server.APIKey
	cc.BindingName = cfg.Server.BindingName
	cc.ModelName = cfg.Server.ModelName
	if cfg.Server.TimeoutSecs > 0 {
		cc.Timeout = time.Duration(cfg.Server.TimeoutSecs) * time.Second
	}
	return cc
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Config returns the current configuration snapshot.
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Client returns the lollms client.
func (a *App) Client() *lollms.Client { return a.client }

// Store returns the discussion store.
func (a *App) Store() *store.DiscussionStore { return a.store }

// Files returns the context file set.
func (a *App) Files() *contextset.FileSet { return a.files }

// Estimator returns the size estimator.
func (a *App) Estimator() *budget.Estimator { return a.estimator }

// History returns the generation log, or nil when disabled.
func (a *App) History() *history.Log { return a.log }

// Repo returns the git handle for the working directory.
func (a *App) Repo() *gitx.Repo { return a.repo }

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

// beginGeneration claims the in-flight slot. Every user-triggered flow
// calls this first; a second trigger while one is running is refused, not
// queued.
func (a *App) beginGeneration() error {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	if a.generating {
		return ErrGenerationInFlight
	}
	a.generating = true
	return nil
}

// endGeneration releases the in-flight slot.
func (a *App) endGeneration() {
	a.genMu.Lock()
	a.generating = false
	a.genMu.Unlock()
}

// Generating reports whether a generation is currently in flight.
func (a *App) Generating() bool {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	return a.generating
}

// =============================================================================
// RECONFIGURATION
// =============================================================================

// Reconfigure points the client at a new server. Cached server-derived
// values (context limit) are invalidated via the client's generation
// counter.
func (a *App) Reconfigure(host, apiKey string) {
	a.cfgMu.Lock()
	a.cfg.Server.Host = host
	a.cfg.Server.APIKey = apiKey
	a.cfgMu.Unlock()
	a.client.Reconfigure(host, apiKey)
}

// applyConfig swaps in a freshly loaded configuration. Derived components
// are rebuilt; the client is reconfigured only when the connection details
// actually changed, so an unrelated edit does not drop the limit cache.
func (a *App) applyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	old := a.cfg
	a.cfg = cfg

	a.assembler.IncludeHeaders = cfg.Context.IncludeFileHeaders
	a.assembler.MaxFileBytes = cfg.Context.MaxFileBytes
	a.assembler.CharsPerToken = cfg.Context.CharsPerToken
	a.builder.Temperature = cfg.Generation.Temperature
	a.builder.MaxTokens = cfg.Generation.MaxTokens
	a.estimator.SetRatios(cfg.Context.WarningThresholdChars, cfg.Context.CharsPerToken)
	a.cfgMu.Unlock()

	if old.Server.Host != cfg.Server.Host || old.Server.APIKey != cfg.Server.APIKey {
		a.client.Reconfigure(cfg.Server.Host, cfg.Server.APIKey)
	}
}
