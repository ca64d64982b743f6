// Package config provides configuration loading, merging, and path
// management for forge.
//
// # Configuration Loading
//
// Load implements a layered loading strategy, later sources overriding
// earlier ones:
//
//  1. Built-in defaults (iteration cap, quiet delay, synthesis n, allowed
//     CLI types)
//  2. Global config (~/.config/forge/forge.json(c))
//  3. Project config (<directory>/.forge/forge.json(c))
//  4. FORGE_-prefixed environment variables
//
// # Supported Formats
//
// Both forge.json and forge.jsonc (JSON with comments) are accepted;
// jsonc files are converted to plain JSON with github.com/tidwall/jsonc
// before unmarshaling.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/forge (XDG_DATA_HOME)
//   - Config: ~/.config/forge (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/forge (XDG_CACHE_HOME)
//   - State: ~/.local/state/forge (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - FORGE_HTTP_PORT - override the facade's listen port
//   - FORGE_CLI_<NAME> - override the binary path for an allow-listed CLI
//     type, e.g. FORGE_CLI_CLAUDE=/opt/claude/bin/claude
package config
