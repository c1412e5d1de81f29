// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultChunkMinChars is the default minimum chunk length in
	// characters. The read+chunk stage drops any chunk whose trimmed text is
	// shorter; the splitter folds a short final chunk into the one before it.
	DefaultChunkMinChars = 200

	// DefaultBatchHNSWThreshold is the input file count at or above which the
	// ingestion controller disables HNSW index building for the run (§4.9 step 4).
	DefaultBatchHNSWThreshold = 5000
)

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ChunkMinChars returns the effective minimum chunk size in characters.
// Controlled via env ATLAS_CHUNK_MIN_CHARS; falls back to DefaultChunkMinChars.
func ChunkMinChars() int {
	if n, ok := positiveEnvInt("ATLAS_CHUNK_MIN_CHARS"); ok {
		return n
	}
	return DefaultChunkMinChars
}

// BatchHNSWThreshold returns the effective batch-mode threshold.
// Controlled via env ATLAS_BATCH_HNSW_THRESHOLD; falls back to DefaultBatchHNSWThreshold.
func BatchHNSWThreshold() int {
	if n, ok := positiveEnvInt("ATLAS_BATCH_HNSW_THRESHOLD"); ok {
		return n
	}
	return DefaultBatchHNSWThreshold
}

func positiveEnvInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ValidateSpecifier checks that a "provider[:model]" specifier string is
// well-formed without resolving it against a registry.
func ValidateSpecifier(specifier string) *ValidationResult {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return &ValidationResult{OK: false, Message: "specifier must not be empty"}
	}
	parts := strings.SplitN(specifier, ":", 2)
	if strings.TrimSpace(parts[0]) == "" {
		return &ValidationResult{OK: false, Message: fmt.Sprintf("specifier %q has no provider", specifier)}
	}
	return &ValidationResult{OK: true}
}
