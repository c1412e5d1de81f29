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

package pipeline

import (
	"fmt"
	"sync"

	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/registry"
)

// IngestContext is the small bundle created once per ingest call (§4.4). It
// holds the root directory, the existing-key dictionary fetched once at
// start, and lazily-constructed, memoized handles to the backends an ingest
// run may need. It is scoped to a single ingest call, never reused across
// runs or shared process-wide — that job belongs to *registry.Registry.
type IngestContext struct {
	Root          string
	ExistingKeys  []string
	Collection    string

	registry *registry.Registry

	mu               sync.Mutex
	textEmbedder     backend.TextEmbedder
	textEmbedderErr  error
	textEmbedderOnce sync.Once

	codeEmbedder     backend.CodeEmbedder
	codeEmbedderErr  error
	codeEmbedderOnce sync.Once

	contextualEmbedder     backend.ContextualEmbedder
	contextualEmbedderErr  error
	contextualEmbedderOnce sync.Once
	hasContextual          bool

	keyGenerator     backend.KeyGenerator
	keyGeneratorErr  error
	keyGeneratorOnce sync.Once

	reranker     backend.Reranker
	rerankerErr  error
	rerankerOnce sync.Once
	hasReranker  bool

	storage     backend.Storage
	storageErr  error
	storageOnce sync.Once

	splitter     backend.Splitter
	splitterErr  error
	splitterOnce sync.Once
}

// NewIngestContext creates a context bound to reg for a single ingest call.
// existingKeys should be the key dictionary fetched once at ingest start
// (§4.9 step 2); it is advisory and never mutated by the context itself.
func NewIngestContext(reg *registry.Registry, root, collection string, existingKeys []string) *IngestContext {
	return &IngestContext{
		Root:         root,
		Collection:   collection,
		ExistingKeys: existingKeys,
		registry:     reg,
	}
}

// TextEmbedder returns the memoized text-embedding backend, resolving it from
// the registry on first call.
func (c *IngestContext) TextEmbedder() (backend.TextEmbedder, error) {
	c.textEmbedderOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityTextEmbedding)
		if err != nil {
			c.textEmbedderErr = err
			return
		}
		eb, ok := v.(backend.TextEmbedder)
		if !ok {
			c.textEmbedderErr = fmt.Errorf("ingest context: registered text-embedding backend does not implement TextEmbedder")
			return
		}
		c.textEmbedder = eb
	})
	return c.textEmbedder, c.textEmbedderErr
}

// CodeEmbedder returns the memoized code-embedding backend, if one is
// registered. Returns a nil backend and nil error when no code embedder was
// configured — callers must check for nil, not just error.
func (c *IngestContext) CodeEmbedder() (backend.CodeEmbedder, error) {
	c.codeEmbedderOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityCodeEmbedding)
		if err != nil {
			return // unconfigured is not an error here, just absence
		}
		eb, ok := v.(backend.CodeEmbedder)
		if !ok {
			c.codeEmbedderErr = fmt.Errorf("ingest context: registered code-embedding backend does not implement CodeEmbedder")
			return
		}
		c.codeEmbedder = eb
	})
	return c.codeEmbedder, c.codeEmbedderErr
}

// ContextualEmbedder returns the memoized contextualized-embedding backend
// and whether one is available, resolving it on first call.
func (c *IngestContext) ContextualEmbedder() (backend.ContextualEmbedder, bool) {
	c.contextualEmbedderOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityContextualEmbed)
		if err != nil {
			return
		}
		eb, ok := v.(backend.ContextualEmbedder)
		if !ok {
			return
		}
		c.contextualEmbedder = eb
		c.hasContextual = true
	})
	return c.contextualEmbedder, c.hasContextual
}

// KeyGenerator returns the memoized key-generation backend.
func (c *IngestContext) KeyGenerator() (backend.KeyGenerator, error) {
	c.keyGeneratorOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityKeyGeneration)
		if err != nil {
			c.keyGeneratorErr = err
			return
		}
		kg, ok := v.(backend.KeyGenerator)
		if !ok {
			c.keyGeneratorErr = fmt.Errorf("ingest context: registered key-generation backend does not implement KeyGenerator")
			return
		}
		c.keyGenerator = kg
	})
	return c.keyGenerator, c.keyGeneratorErr
}

// Reranker returns the memoized rerank backend and whether one is available.
func (c *IngestContext) Reranker() (backend.Reranker, bool) {
	c.rerankerOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityTextReranking)
		if err != nil {
			return
		}
		rr, ok := v.(backend.Reranker)
		if !ok {
			return
		}
		c.reranker = rr
		c.hasReranker = true
	})
	return c.reranker, c.hasReranker
}

// Storage returns the memoized storage backend.
func (c *IngestContext) Storage() (backend.Storage, error) {
	c.storageOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityVectorStorage)
		if err != nil {
			c.storageErr = err
			return
		}
		st, ok := v.(backend.Storage)
		if !ok {
			c.storageErr = fmt.Errorf("ingest context: registered vector-storage backend does not implement Storage")
			return
		}
		c.storage = st
	})
	return c.storage, c.storageErr
}

// Splitter returns the memoized text-splitting backend.
func (c *IngestContext) Splitter() (backend.Splitter, error) {
	c.splitterOnce.Do(func() {
		v, err := c.registry.GetFor(backend.CapabilityTextSplitting)
		if err != nil {
			c.splitterErr = err
			return
		}
		sp, ok := v.(backend.Splitter)
		if !ok {
			c.splitterErr = fmt.Errorf("ingest context: registered text-splitting backend does not implement Splitter")
			return
		}
		c.splitter = sp
	})
	return c.splitter, c.splitterErr
}

// HasExistingKey reports whether key case-insensitively matches an entry
// already in the dictionary, and if so returns its canonical casing.
func (c *IngestContext) HasExistingKey(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.ExistingKeys {
		if len(k) == len(key) && equalFold(k, key) {
			return k, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
