package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all rina configuration.
type Config struct {
	// Agent runtime
	AgentCommand  string   `yaml:"agent_command"`
	AgentArgs     []string `yaml:"agent_args"`
	AgentMaxSteps int      `yaml:"agent_max_steps"`

	// History assembly
	MaxHistoryMessages int `yaml:"max_history_messages"`
	MaxAttachments     int `yaml:"max_attachments"`
	MaxImageKB         int `yaml:"max_image_kb"`
	MaxFileKB          int `yaml:"max_file_kb"`

	// Telegram
	TelegramBotToken string  `yaml:"telegram_bot_token"`
	BotUsername      string  `yaml:"bot_username"`
	AllowedGroups    []int64 `yaml:"allowed_groups"`

	// Web UI
	WebEnabled   bool    `yaml:"web_enabled"`
	WebHost      string  `yaml:"web_host"`
	WebPort      uint16  `yaml:"web_port"`
	WebAuthToken *string `yaml:"web_auth_token"`

	// Digest
	Digest DigestConfig `yaml:"digest"`

	// Paths & environment
	DataDir  string `yaml:"data_dir"`
	Timezone string `yaml:"timezone"`
}

// DigestConfig controls the periodic RSS digest.
type DigestConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Feeds         []string `yaml:"feeds"`
	Cron          string   `yaml:"cron"`
	ThreadID      string   `yaml:"thread_id"`
	DedupCapacity int      `yaml:"dedup_capacity"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		AgentCommand:       "rina-agent",
		AgentMaxSteps:      50,
		MaxHistoryMessages: 50,
		MaxAttachments:     6,
		MaxImageKB:         4096,
		MaxFileKB:          1024,
		WebEnabled:         false,
		WebHost:            "127.0.0.1",
		WebPort:            10970,
		DataDir:            "./rina.data",
		Timezone:           "UTC",
		Digest: DigestConfig{
			Cron:          "0 8 * * *",
			DedupCapacity: 512,
		},
	}
}

// LoadConfig reads and parses the configuration file.
// Resolution order: RINA_CONFIG env → ./rina.config.yaml → ./rina.config.yml
func LoadConfig() (*Config, error) {
	path := os.Getenv("RINA_CONFIG")
	if path == "" {
		candidates := []string{"rina.config.yaml", "rina.config.yml"}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no config file found (set RINA_CONFIG or create rina.config.yaml)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.postDeserialize()
	return &cfg, nil
}

// postDeserialize normalizes config after YAML parsing.
func (c *Config) postDeserialize() {
	c.AgentCommand = strings.TrimSpace(c.AgentCommand)

	if c.AgentMaxSteps <= 0 {
		c.AgentMaxSteps = 50
	}
	if c.MaxHistoryMessages <= 0 {
		c.MaxHistoryMessages = 50
	}
	if c.MaxAttachments <= 0 {
		c.MaxAttachments = 6
	}
	if c.MaxImageKB <= 0 {
		c.MaxImageKB = 4096
	}
	if c.MaxFileKB <= 0 {
		c.MaxFileKB = 1024
	}
	if c.Digest.DedupCapacity <= 0 {
		c.Digest.DedupCapacity = 512
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 8 * * *"
	}
}

// Validate checks for configuration errors.
func (c *Config) Validate() error {
	if c.AgentCommand == "" {
		return fmt.Errorf("agent_command is required")
	}

	hasTelegram := c.TelegramBotToken != ""
	if !hasTelegram && !c.WebEnabled {
		return fmt.Errorf("at least one channel must be enabled (telegram or web)")
	}

	if c.WebEnabled && !isLocalHost(c.WebHost) {
		if c.WebAuthToken == nil || *c.WebAuthToken == "" {
			return fmt.Errorf("web_auth_token is required when web_host is not localhost")
		}
	}

	if c.Digest.Enabled {
		if len(c.Digest.Feeds) == 0 {
			return fmt.Errorf("digest.feeds must not be empty when the digest is enabled")
		}
		if c.Digest.ThreadID == "" {
			return fmt.Errorf("digest.thread_id is required when the digest is enabled")
		}
	}

	return nil
}

func isLocalHost(host string) bool {
	return host == "127.0.0.1" || host == "localhost" || host == "::1" || host == ""
}

// DBPath returns the SQLite database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "rina.db")
}

// LogsDir returns the log file directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}
