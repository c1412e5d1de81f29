// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry implements the backend registry and capability model:
// backends register themselves under a capability and a provider[:model]
// specifier, and callers look them up either by exact specifier or by
// capability alone (first-registered wins).
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kraklabs/atlas/pkg/backend"
)

// entry pairs a registered backend with the descriptor it was registered
// under.
type entry struct {
	descriptor backend.Descriptor
	value      any
}

// Registry is the process-wide home for every configured backend. It is safe
// for concurrent use; registration typically happens once at startup while
// lookups happen throughout the ingestion and retrieval pipelines.
type Registry struct {
	mu      sync.RWMutex
	entries map[backend.Capability][]entry
	logger  *slog.Logger
}

// New creates an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[backend.Capability][]entry),
		logger:  logger,
	}
}

// Register adds a backend under the given capability and specifier.
// Registering the same capability+specifier twice replaces the prior value.
// Ensure, by contrast, leaves an existing value in place.
func (r *Registry) Register(capability backend.Capability, specifier string, value any) error {
	provider, model, err := ParseSpecifier(specifier)
	if err != nil {
		return fmt.Errorf("registry: register %s: %w", capability, err)
	}

	d := backend.Descriptor{Capability: capability, Provider: provider, Model: model}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[capability]
	for i, e := range list {
		if e.descriptor.Specifier() == d.Specifier() {
			list[i] = entry{descriptor: d, value: value}
			r.logger.Debug("registry.backend.replaced", "capability", capability, "specifier", d.Specifier())
			return nil
		}
	}
	r.entries[capability] = append(list, entry{descriptor: d, value: value})
	r.logger.Info("registry.backend.registered", "capability", capability, "specifier", d.Specifier())
	return nil
}

// Get returns the backend registered for capability+specifier exactly.
func (r *Registry) Get(capability backend.Capability, specifier string) (any, error) {
	provider, model, err := ParseSpecifier(specifier)
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", capability, err)
	}
	want := backend.Descriptor{Capability: capability, Provider: provider, Model: model}.Specifier()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries[capability] {
		if e.descriptor.Specifier() == want {
			return e.value, nil
		}
	}
	return nil, fmt.Errorf("registry: no backend registered for capability %q specifier %q", capability, specifier)
}

// GetFor returns the first backend registered for a capability, regardless of
// specifier. Callers that don't care which provider serves a capability (or
// that configured exactly one) use this instead of Get.
func (r *Registry) GetFor(capability backend.Capability) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[capability]
	if len(list) == 0 {
		return nil, fmt.Errorf("registry: no backend registered for capability %q", capability)
	}
	return list[0].value, nil
}

// Ensure registers value under capability+specifier only if nothing is
// already registered there, making repeated bootstrap calls (e.g. from
// multiple CLI invocations sharing a config) safe to call unconditionally.
func (r *Registry) Ensure(capability backend.Capability, specifier string, factory func() (any, error)) (any, error) {
	if v, err := r.Get(capability, specifier); err == nil {
		return v, nil
	}

	v, err := factory()
	if err != nil {
		return nil, fmt.Errorf("registry: ensure %s %s: %w", capability, specifier, err)
	}
	if err := r.Register(capability, specifier, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Descriptors lists every registered backend for a capability, for CLI
// introspection (`atlas status`) and diagnostics.
func (r *Registry) Descriptors(capability backend.Capability) []backend.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]backend.Descriptor, 0, len(r.entries[capability]))
	for _, e := range r.entries[capability] {
		out = append(out, e.descriptor)
	}
	return out
}

// CheckAvailability runs IsAvailable against every backend under a capability
// and returns the first error encountered, if any. Backends not implementing
// backend.Availability are skipped rather than treated as unavailable.
func (r *Registry) CheckAvailability(ctx context.Context, capability backend.Capability) error {
	r.mu.RLock()
	list := append([]entry(nil), r.entries[capability]...)
	r.mu.RUnlock()

	for _, e := range list {
		av, ok := e.value.(backend.Availability)
		if !ok {
			continue
		}
		if err := av.IsAvailable(ctx); err != nil {
			return fmt.Errorf("registry: backend %s unavailable: %w", e.descriptor.Specifier(), err)
		}
	}
	return nil
}

// ParseSpecifier splits a "provider[:model]" specifier string into its parts.
// A bare provider name with no colon leaves Model empty, meaning "the
// provider's default model".
func ParseSpecifier(specifier string) (provider, model string, err error) {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return "", "", fmt.Errorf("empty specifier")
	}
	parts := strings.SplitN(specifier, ":", 2)
	provider = strings.ToLower(strings.TrimSpace(parts[0]))
	if provider == "" {
		return "", "", fmt.Errorf("specifier %q has no provider", specifier)
	}
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	return provider, model, nil
}
