package types

import "time"

// Config is the application configuration, loaded from sman.json[c]
// files and environment overrides.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Pool    PoolConfig    `json:"pool"`
	Tools   ToolsConfig   `json:"tools"`
	LLM     LLMConfig     `json:"llm"`
	Storage StorageConfig `json:"storage"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig configures the WebSocket server.
type ServerConfig struct {
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
}

// PoolConfig sizes the worker pools. Zero queue capacity: a submit with
// no idle worker is rejected, not queued.
type PoolConfig struct {
	Workers        int `json:"workers"`
	SubTaskWorkers int `json:"subtaskWorkers"`
}

// ToolsConfig controls routing of tool calls to the connected client.
type ToolsConfig struct {
	// Forward lists tool names that must execute on the client.
	Forward []string `json:"forward"`
	// ForwardTimeoutSeconds bounds the wait for a TOOL_RESULT.
	ForwardTimeoutSeconds int `json:"forwardTimeoutSeconds"`
}

// ForwardTimeout returns the tool forwarding deadline as a duration.
func (c ToolsConfig) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutSeconds) * time.Second
}

// LLMConfig configures the reasoning-model endpoint.
type LLMConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	MaxSteps int    `json:"maxSteps"`
}

// StorageConfig configures session persistence.
type StorageConfig struct {
	Dir string `json:"dir"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}
