// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Causeway
// tunnel daemon.
//
// Configuration is loaded from a single file specified by:
//   - CAUSEWAY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// Files ending in .yaml or .yml parse as YAML; files ending in .json
// or .jsonc parse as JSON with comments and trailing commas permitted.
package config
