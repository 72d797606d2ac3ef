package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultListenAddr             = "127.0.0.1:8750"
	DefaultLLMBaseURL             = "http://localhost:11434/v1"
	DefaultLLMModel               = "llama3.1"
	DefaultLearningInterval       = 10  // analyze after every N messages
	DefaultConsolidationThreshold = 100 // full consolidation when >N messages in 24h
	DefaultActiveFactCeiling      = 200 // or when active facts exceed this
	DefaultAnalysisWindow         = 20  // turns fed to the analyzer
	DefaultAnalysisTimeoutSeconds = 60
)

// Config holds the resolved runtime configuration.
type Config struct {
	ListenAddr string

	// LLM analysis collaborator
	LLMProvider string // "openai" or "ollama" (OpenAI-compatible endpoints) or "anthropic"
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string

	// Learning policy
	LearningEnabled        bool
	LearningInterval       int
	ConsolidationThreshold int
	ActiveFactCeiling      int
	AnalysisWindow         int
	AnalysisTimeoutSeconds int

	LogLevel string
	LogFile  string
	DBPath   string

	ConfigPath  string
	MindkeepDir string
}

type fileConfig struct {
	Server struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"server"`
	LLM struct {
		Provider string `toml:"provider"`
		BaseURL  string `toml:"base_url"`
		APIKey   string `toml:"api_key"`
		Model    string `toml:"model"`
	} `toml:"llm"`
	Learning struct {
		Enabled                *bool `toml:"enabled"`
		UpdateInterval         int   `toml:"update_interval"`
		ConsolidationThreshold int   `toml:"consolidation_threshold"`
		ActiveFactCeiling      int   `toml:"active_fact_ceiling"`
		AnalysisWindow         int   `toml:"analysis_window"`
		AnalysisTimeoutSeconds int   `toml:"analysis_timeout_seconds"`
	} `toml:"learning"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	Storage struct {
		Path string `toml:"path"`
	} `toml:"storage"`
}

// DataDir resolves the mindkeep data directory. MINDKEEP_DIR overrides the
// default of ~/.mindkeep.
func DataDir() (string, error) {
	if dir := os.Getenv("MINDKEEP_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mindkeep"), nil
}

// EnsureDirs creates the data directory layout if missing.
func EnsureDirs(dir string) error {
	for _, sub := range []string{"", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Join(dir, sub), err)
		}
	}
	return nil
}

// LoadConfig loads configuration from file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, err
	}
	if err := EnsureDirs(dir); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.toml")

	cfg := &Config{
		ListenAddr:             DefaultListenAddr,
		LLMProvider:            "openai",
		LLMBaseURL:             DefaultLLMBaseURL,
		LLMModel:               DefaultLLMModel,
		LearningEnabled:        true,
		LearningInterval:       DefaultLearningInterval,
		ConsolidationThreshold: DefaultConsolidationThreshold,
		ActiveFactCeiling:      DefaultActiveFactCeiling,
		AnalysisWindow:         DefaultAnalysisWindow,
		AnalysisTimeoutSeconds: DefaultAnalysisTimeoutSeconds,
		LogLevel:               "info",
		LogFile:                filepath.Join(dir, "logs", "mindkeep.log"),
		DBPath:                 filepath.Join(dir, "store.sqlite3"),
		ConfigPath:             configPath,
		MindkeepDir:            dir,
	}

	if _, err := os.Stat(configPath); err == nil {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var parsed fileConfig
		if err := toml.Unmarshal(fileData, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}

		if parsed.Server.ListenAddr != "" {
			cfg.ListenAddr = parsed.Server.ListenAddr
		}
		if parsed.LLM.Provider != "" {
			cfg.LLMProvider = parsed.LLM.Provider
		}
		if parsed.LLM.BaseURL != "" {
			cfg.LLMBaseURL = parsed.LLM.BaseURL
		}
		if parsed.LLM.APIKey != "" {
			cfg.LLMAPIKey = parsed.LLM.APIKey
		}
		if parsed.LLM.Model != "" {
			cfg.LLMModel = parsed.LLM.Model
		}
		if parsed.Learning.Enabled != nil {
			cfg.LearningEnabled = *parsed.Learning.Enabled
		}
		if parsed.Learning.UpdateInterval > 0 {
			cfg.LearningInterval = parsed.Learning.UpdateInterval
		}
		if parsed.Learning.ConsolidationThreshold > 0 {
			cfg.ConsolidationThreshold = parsed.Learning.ConsolidationThreshold
		}
		if parsed.Learning.ActiveFactCeiling > 0 {
			cfg.ActiveFactCeiling = parsed.Learning.ActiveFactCeiling
		}
		if parsed.Learning.AnalysisWindow > 0 {
			cfg.AnalysisWindow = parsed.Learning.AnalysisWindow
		}
		if parsed.Learning.AnalysisTimeoutSeconds > 0 {
			cfg.AnalysisTimeoutSeconds = parsed.Learning.AnalysisTimeoutSeconds
		}
		if parsed.Logging.Level != "" {
			cfg.LogLevel = parsed.Logging.Level
		}
		if parsed.Logging.File != "" {
			cfg.LogFile = parsed.Logging.File
			if !filepath.IsAbs(cfg.LogFile) {
				cfg.LogFile = filepath.Join(dir, cfg.LogFile)
			}
		}
		if parsed.Storage.Path != "" {
			cfg.DBPath = parsed.Storage.Path
			if !filepath.IsAbs(cfg.DBPath) {
				cfg.DBPath = filepath.Join(dir, cfg.DBPath)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration for values the rest of the
// system cannot work with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch c.LLMProvider {
	case "openai", "ollama", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	if c.LearningInterval <= 0 {
		return fmt.Errorf("learning update interval must be positive, got %d", c.LearningInterval)
	}
	if c.AnalysisWindow <= 0 {
		return fmt.Errorf("analysis window must be positive, got %d", c.AnalysisWindow)
	}
	if c.ConsolidationThreshold <= 0 || c.ActiveFactCeiling <= 0 {
		return fmt.Errorf("consolidation thresholds must be positive")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("MINDKEEP_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := os.Getenv("MINDKEEP_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if logFile := os.Getenv("MINDKEEP_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if provider := os.Getenv("MINDKEEP_LLM_PROVIDER"); provider != "" {
		cfg.LLMProvider = provider
	}
	if baseURL := os.Getenv("MINDKEEP_LLM_BASE_URL"); baseURL != "" {
		cfg.LLMBaseURL = baseURL
	}
	if apiKey := os.Getenv("MINDKEEP_LLM_API_KEY"); apiKey != "" {
		cfg.LLMAPIKey = apiKey
	}
	if model := os.Getenv("MINDKEEP_LLM_MODEL"); model != "" {
		cfg.LLMModel = model
	}
	if enabled := os.Getenv("MINDKEEP_LEARNING_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.LearningEnabled = parsed
		}
	}
	if interval := os.Getenv("MINDKEEP_LEARNING_INTERVAL"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil && parsed > 0 {
			cfg.LearningInterval = parsed
		}
	}
	if dbPath := os.Getenv("MINDKEEP_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
}
