// Package config loads application configuration from sman.json[c]
// files and environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/smancode/sman-sub006/pkg/types"
)

// DefaultForwardTools is the built-in allow-list of tools that must
// execute on the connected IDE client.
var DefaultForwardTools = []string{
	"find_file", "read_file", "grep_file", "call_chain", "extract_xml", "apply_change",
}

// Default returns the built-in configuration.
func Default() *types.Config {
	home, _ := os.UserHomeDir()
	return &types.Config{
		Server: types.ServerConfig{Port: 8080, Hostname: "127.0.0.1"},
		Pool:   types.PoolConfig{Workers: 32, SubTaskWorkers: 8},
		Tools: types.ToolsConfig{
			Forward:               append([]string(nil), DefaultForwardTools...),
			ForwardTimeoutSeconds: 30,
		},
		LLM:     types.LLMConfig{MaxSteps: 25},
		Storage: types.StorageConfig{Dir: filepath.Join(home, ".sman", "sessions")},
		Log:     types.LogConfig{Level: "INFO"},
	}
}

// Load builds the configuration (priority order):
// 1. built-in defaults
// 2. ~/.sman/sman.json[c]
// 3. <directory>/sman.json[c]
// 4. SMAN_CONFIG file
// 5. environment variable overrides
func Load(directory string) (*types.Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		loadFile(filepath.Join(home, ".sman", "sman.json"), cfg)
		loadFile(filepath.Join(home, ".sman", "sman.jsonc"), cfg)
	}
	if directory != "" {
		loadFile(filepath.Join(directory, "sman.json"), cfg)
		loadFile(filepath.Join(directory, "sman.jsonc"), cfg)
	}
	if path := os.Getenv("SMAN_CONFIG"); path != "" {
		loadFile(path, cfg)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges one config file into cfg. Missing files are skipped.
func loadFile(path string, cfg *types.Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var overlay types.Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return
	}
	merge(cfg, &overlay)
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge overlays non-zero fields of src onto dst.
func merge(dst, src *types.Config) {
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.Hostname != "" {
		dst.Server.Hostname = src.Server.Hostname
	}
	if src.Pool.Workers != 0 {
		dst.Pool.Workers = src.Pool.Workers
	}
	if src.Pool.SubTaskWorkers != 0 {
		dst.Pool.SubTaskWorkers = src.Pool.SubTaskWorkers
	}
	if len(src.Tools.Forward) > 0 {
		dst.Tools.Forward = src.Tools.Forward
	}
	if src.Tools.ForwardTimeoutSeconds != 0 {
		dst.Tools.ForwardTimeoutSeconds = src.Tools.ForwardTimeoutSeconds
	}
	if src.LLM.Endpoint != "" {
		dst.LLM.Endpoint = src.LLM.Endpoint
	}
	if src.LLM.Model != "" {
		dst.LLM.Model = src.LLM.Model
	}
	if src.LLM.APIKey != "" {
		dst.LLM.APIKey = src.LLM.APIKey
	}
	if src.LLM.MaxSteps != 0 {
		dst.LLM.MaxSteps = src.LLM.MaxSteps
	}
	if src.Storage.Dir != "" {
		dst.Storage.Dir = src.Storage.Dir
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Pretty {
		dst.Log.Pretty = true
	}
}

// applyEnvOverrides applies SMAN_* environment variables.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("SMAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SMAN_HOSTNAME"); v != "" {
		cfg.Server.Hostname = v
	}
	if v := os.Getenv("SMAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Workers = n
		}
	}
	if v := os.Getenv("SMAN_FORWARD_TOOLS"); v != "" {
		cfg.Tools.Forward = strings.Split(v, ",")
	}
	if v := os.Getenv("SMAN_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("SMAN_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SMAN_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SMAN_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("SMAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
