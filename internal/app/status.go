// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import "context"

// Status is a snapshot of the connection and local state.
type Status struct {
	Host         string
	Configured   bool
	Reachable    bool
	Healthy      bool
	Version      string
	ContextLimit int
	Discussions  int
	ContextFiles int
}

// Status probes the server and summarizes local state. Probe failures are
// reflected in the flags rather than returned; status is always available.
func (a *App) Status(ctx context.Context) *Status {
	s := &Status{
		Host:         a.client.BaseURL(),
		Configured:   a.client.IsConfigured(),
		Discussions:  a.store.Count(),
		ContextFiles: a.files.Len(),
	}
	if !s.Configured {
		return s
	}

	health, err := a.client.Health(ctx)
	if err != nil {
		return s
	}
	s.Reachable = true
	s.Healthy = health.IsOK()
	s.Version = health.Version
	s.ContextLimit = a.estimator.Limit(ctx)
	return s
}
