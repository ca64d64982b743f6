package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/sk8tingusmc/forge/pkg/types"
)

const (
	defaultMaxIterations = 20
	defaultQuietDelayMs  = 12000
	defaultSynthesisN    = 5
)

var defaultAllowedCLITypes = []string{"claude", "gemini", "codex", "copilot", "qwen", "llm"}

// Load loads configuration from multiple sources (priority order):
//  1. Built-in defaults
//  2. Global config (~/.config/forge/forge.json(c))
//  3. Project config (<directory>/.forge/forge.json(c))
//  4. Environment variables
func Load(directory string) (*types.Config, error) {
	cfg := &types.Config{
		DefaultMaxIterations: defaultMaxIterations,
		DefaultQuietDelayMs:  defaultQuietDelayMs,
		DefaultSynthesisN:    defaultSynthesisN,
		AllowedCLITypes:      append([]string(nil), defaultAllowedCLITypes...),
		CLIBinaries:          make(map[string]string),
		HTTP:                 types.HTTPConfig{Port: 4096, EnableCORS: true},
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "forge.json"), cfg)
	loadConfigFile(filepath.Join(globalPath, "forge.jsonc"), cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".forge", "forge.json"), cfg)
		loadConfigFile(filepath.Join(directory, ".forge", "forge.jsonc"), cfg)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadConfigFile reads one config file and merges it into cfg. A missing
// file is not an error.
func loadConfigFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	data = jsonc.ToJSON(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(cfg, &fileConfig)
	return nil
}

// mergeConfig merges source into target: non-zero scalars and a non-empty
// AllowedCLITypes replace target's values, and CLIBinaries entries are
// merged key by key.
func mergeConfig(target, source *types.Config) {
	if source.DefaultMaxIterations != 0 {
		target.DefaultMaxIterations = source.DefaultMaxIterations
	}
	if source.DefaultQuietDelayMs != 0 {
		target.DefaultQuietDelayMs = source.DefaultQuietDelayMs
	}
	if source.DefaultSynthesisN != 0 {
		target.DefaultSynthesisN = source.DefaultSynthesisN
	}
	if len(source.AllowedCLITypes) > 0 {
		target.AllowedCLITypes = source.AllowedCLITypes
	}
	if source.CLIBinaries != nil {
		if target.CLIBinaries == nil {
			target.CLIBinaries = make(map[string]string)
		}
		for k, v := range source.CLIBinaries {
			target.CLIBinaries[k] = v
		}
	}
	if source.HTTP.Port != 0 {
		target.HTTP.Port = source.HTTP.Port
	}
	if source.HTTP.EnableCORS {
		target.HTTP.EnableCORS = source.HTTP.EnableCORS
	}
}

// applyEnvOverrides applies FORGE_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *types.Config) {
	if port := os.Getenv("FORGE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.HTTP.Port = p
		}
	}
	for _, cli := range cfg.AllowedCLITypes {
		envVar := "FORGE_CLI_" + strings.ToUpper(cli)
		if bin := os.Getenv(envVar); bin != "" {
			cfg.CLIBinaries[cli] = bin
		}
	}
}

// Save writes cfg to path as indented JSON, creating parent directories as
// needed.
func Save(cfg *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
