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
	"os"
	"strings"
)

// DefaultProvider creates a provider from environment variables.
// Checks in order: OLLAMA_HOST, OPENAI_API_KEY, ANTHROPIC_API_KEY
// Falls back to mock if nothing is configured.
func DefaultProvider() (Provider, error) {
	// Check for Ollama first (local, free)
	if os.Getenv("OLLAMA_HOST") != "" || os.Getenv("OLLAMA_BASE_URL") != "" || os.Getenv("OLLAMA_MODEL") != "" {
		return NewProvider(ProviderConfig{Type: "ollama"})
	}

	// Check for OpenAI
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewProvider(ProviderConfig{Type: "openai"})
	}

	// Check for Anthropic
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return NewProvider(ProviderConfig{Type: "anthropic"})
	}

	// Default to mock for development
	return NewProvider(ProviderConfig{Type: "mock"})
}

// ProviderFromEnv creates a provider from a specific environment variable.
// Example: LLM_PROVIDER=ollama will use Ollama.
func ProviderFromEnv(envVar string) (Provider, error) {
	providerType := os.Getenv(envVar)
	if providerType == "" {
		return DefaultProvider()
	}
	return NewProvider(ProviderConfig{Type: providerType})
}

// QuickGenerate is a convenience function for simple text generation.
func QuickGenerate(ctx context.Context, prompt string) (string, error) {
	provider, err := DefaultProvider()
	if err != nil {
		return "", err
	}
	resp, err := provider.Generate(ctx, GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// QuickChat is a convenience function for simple chat.
func QuickChat(ctx context.Context, messages ...string) (string, error) {
	provider, err := DefaultProvider()
	if err != nil {
		return "", err
	}

	msgs := make([]Message, len(messages))
	for i, m := range messages {
		if i%2 == 0 {
			msgs[i] = Message{Role: "user", Content: m}
		} else {
			msgs[i] = Message{Role: "assistant", Content: m}
		}
	}

	resp, err := provider.Chat(ctx, ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// KeyGenPrompt helps build prompts for QNTM key generation (pkg/llm's
// KeyGenerator wraps Provider.Chat with one of these per chunk).
type KeyGenPrompt struct {
	Text         string
	ExistingKeys []string
}

// Build generates a formatted prompt asking the model for a small set of
// semantic tags, steering it to reuse existingKeys when the concept already
// has a canonical key (§4.7).
func (kp KeyGenPrompt) Build() string {
	var sb strings.Builder

	sb.WriteString("Extract 2-6 short semantic keys (lowercase, hyphenated) for the following text.\n")
	if len(kp.ExistingKeys) > 0 {
		sb.WriteString(fmt.Sprintf("Prefer reusing one of these existing keys when it fits: %s\n", strings.Join(kp.ExistingKeys, ", ")))
	}
	sb.WriteString("Respond with a comma-separated list of keys only, no commentary.\n\n")
	sb.WriteString(kp.Text)

	return sb.String()
}

// SystemPrompts contains the system prompt used for key generation.
var SystemPrompts = struct {
	KeyGeneration string
}{
	KeyGeneration: `You are a semantic tagging assistant for a memory-indexing system.
Given a chunk of text, produce a small set of short, reusable keys that
capture its core concepts. Keys are lowercase and hyphenated
(e.g. "vector-search", "batch-upsert"). Prefer reusing an existing key over
inventing a near-duplicate. Return only the keys, comma-separated.`,
}

// BuildChatMessages creates a chat message array with system prompt.
func BuildChatMessages(systemPrompt, userPrompt string, history ...Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: userPrompt})
	return messages
}
