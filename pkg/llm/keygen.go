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

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/atlas/pkg/backend"
)

// KeyGenerator implements backend.KeyGenerator by driving a Provider's Chat
// endpoint with a key-extraction prompt, then sanitizing and canonicalizing
// the model's response: keys are lowercased, any leading "@" is dropped,
// internal whitespace is collapsed, the "namespace ~ term" separator is
// preserved as " ~ ", keys are deduplicated preserving first occurrence, and
// any key matching an existing key case-insensitively is rewritten to the
// existing key's exact casing so the dictionary doesn't accumulate
// near-duplicates across ingestion runs.
type KeyGenerator struct {
	provider Provider
	maxKeys  int
}

// NewKeyGenerator wraps provider as a backend.KeyGenerator. maxKeys caps how
// many keys are kept per chunk after sanitization; 0 means use the default.
func NewKeyGenerator(provider Provider, maxKeys int) *KeyGenerator {
	if maxKeys <= 0 {
		maxKeys = 6
	}
	return &KeyGenerator{provider: provider, maxKeys: maxKeys}
}

func (g *KeyGenerator) Name() string { return "llm-keygen:" + g.provider.Name() }

func (g *KeyGenerator) Supports(c backend.Capability) bool {
	return c == backend.CapabilityKeyGeneration
}

func (g *KeyGenerator) IsAvailable(ctx context.Context) error {
	_, err := g.provider.Models(ctx)
	if err != nil {
		return fmt.Errorf("keygen: provider unavailable: %w", err)
	}
	return nil
}

// GenerateKeys asks the wrapped provider for keys describing text, steering
// it to reuse existingKeys (the ingest-scoped key dictionary) where a
// concept already has a canonical key, then sanitizes the response.
func (g *KeyGenerator) GenerateKeys(ctx context.Context, text string, existingKeys []string) ([]string, error) {
	prompt := KeyGenPrompt{Text: text, ExistingKeys: existingKeys}
	messages := BuildChatMessages(SystemPrompts.KeyGeneration, prompt.Build())

	resp, err := g.provider.Chat(ctx, ChatRequest{Messages: messages, Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("keygen: chat: %w", err)
	}

	return SanitizeKeys(resp.Message.Content, existingKeys, g.maxKeys), nil
}

// SanitizeKeys normalizes a raw comma/newline-separated key list into the
// canonical QNTM form: each key is lowercased, any leading "@" is dropped,
// internal whitespace is collapsed, and a "namespace ~ term" key keeps the
// " ~ " separator. Keys are deduplicated preserving first occurrence (the
// qntm_keys set is ordered, derived from the model's own output order), and
// any key that matches an existing key case-insensitively is canonicalized
// to that existing key's exact casing instead of kept as a near-duplicate.
// The result is capped at maxKeys entries.
func SanitizeKeys(raw string, existingKeys []string, maxKeys int) []string {
	existingByCanonical := make(map[string]string, len(existingKeys))
	for _, k := range existingKeys {
		existingByCanonical[canonicalizeKey(k)] = k
	}

	seen := make(map[string]bool)
	var out []string

	for _, field := range splitKeyList(raw) {
		key := canonicalizeKey(field)
		if key == "" {
			continue
		}
		if existing, ok := existingByCanonical[key]; ok {
			key = existing
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
		if len(out) >= maxKeys {
			break
		}
	}

	return out
}

func splitKeyList(raw string) []string {
	raw = strings.ReplaceAll(raw, "\n", ",")
	return strings.Split(raw, ",")
}

// canonicalizeKey reduces a single raw key to the spec's canonical form: a
// "namespace ~ term" pair (or a bare term) that is lowercase, has no leading
// "@" marker, and has its internal whitespace collapsed. The "~" separator
// itself, when present, is preserved and normalized to " ~ ".
func canonicalizeKey(field string) string {
	field = strings.TrimPrefix(strings.TrimSpace(field), "@")
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return ""
	}

	if namespace, term, ok := strings.Cut(field, "~"); ok {
		namespace = collapseWhitespace(namespace)
		term = collapseWhitespace(term)
		if namespace == "" || term == "" {
			return ""
		}
		return namespace + " ~ " + term
	}

	return collapseWhitespace(field)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ backend.KeyGenerator = (*KeyGenerator)(nil)
