package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main sage configuration
type Config struct {
	// Provider holds generation backend settings
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Agent holds orchestration bounds
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Tools holds tool settings
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Session holds conversation history settings
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Prompts holds prompt override settings
	Prompts PromptsConfig `json:"prompts" mapstructure:"prompts"`

	// Gateway holds gateway server settings
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging holds logging settings
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderConfig holds generation provider configuration
type ProviderConfig struct {
	Name        string  `json:"name" mapstructure:"name"` // openai, anthropic, gemini
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxRetries  int     `json:"max_retries" mapstructure:"max_retries"`
}

// AgentConfig holds orchestration bounds
type AgentConfig struct {
	MaxIterations         int `json:"max_iterations" mapstructure:"max_iterations"`
	ResearchMaxIterations int `json:"research_max_iterations" mapstructure:"research_max_iterations"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	HTTPTimeout   int            `json:"http_timeout" mapstructure:"http_timeout"`     // seconds
	PythonBin     string         `json:"python_bin" mapstructure:"python_bin"`         // interpreter for python_repl
	PythonTimeout int            `json:"python_timeout" mapstructure:"python_timeout"` // seconds
	WebFetch      WebFetchConfig `json:"web_fetch" mapstructure:"web_fetch"`
}

// WebFetchConfig holds the browser-backed page fetch tool settings
type WebFetchConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Timeout int  `json:"timeout" mapstructure:"timeout"` // seconds
}

// SessionConfig holds conversation history configuration
type SessionConfig struct {
	Dir             string `json:"dir" mapstructure:"dir"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"` // cron expression
	RetentionDays   int    `json:"retention_days" mapstructure:"retention_days"`
}

// PromptsConfig holds prompt template override configuration
type PromptsConfig struct {
	Dir string `json:"dir" mapstructure:"dir"` // override directory, empty disables
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "",
			MaxTokens:   4096,
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Agent: AgentConfig{
			MaxIterations:         5,
			ResearchMaxIterations: 5,
		},
		Tools: ToolsConfig{
			HTTPTimeout:   15,
			PythonBin:     "python3",
			PythonTimeout: 10,
			WebFetch: WebFetchConfig{
				Enabled: false,
				Timeout: 20,
			},
		},
		Session: SessionConfig{
			CleanupSchedule: "0 * * * *",
			RetentionDays:   7,
		},
		Gateway: GatewayConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			SharedSecret: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider name is required")
	}

	validProviders := []string{"openai", "anthropic", "gemini"}
	valid := false
	for _, vp := range validProviders {
		if c.Provider.Name == vp {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider %s (must be: openai, anthropic, gemini)", c.Provider.Name)
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required (or set %s)", providerKeyEnv(c.Provider.Name))
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max_iterations must be positive")
	}
	if c.Agent.ResearchMaxIterations <= 0 {
		return fmt.Errorf("agent research_max_iterations must be positive")
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway port must be between 1 and 65535")
	}

	return nil
}
