package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rina.yaml")
	content := `
agent_command: my-agent
agent_args: ["--permission-mode", "dontask"]
telegram_bot_token: "123:abc"
bot_username: rina_bot
allowed_groups: [-100200300]
max_history_messages: 25
digest:
  enabled: true
  feeds: ["https://example.com/rss"]
  thread_id: "telegram:-100200300"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RINA_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.AgentCommand != "my-agent" {
		t.Errorf("AgentCommand = %q", cfg.AgentCommand)
	}
	if len(cfg.AgentArgs) != 2 || cfg.AgentArgs[0] != "--permission-mode" {
		t.Errorf("AgentArgs = %v", cfg.AgentArgs)
	}
	if cfg.MaxHistoryMessages != 25 {
		t.Errorf("MaxHistoryMessages = %d, want 25", cfg.MaxHistoryMessages)
	}
	// Untouched fields keep their defaults.
	if cfg.AgentMaxSteps != 50 {
		t.Errorf("AgentMaxSteps = %d, want default 50", cfg.AgentMaxSteps)
	}
	if cfg.WebPort != 10970 {
		t.Errorf("WebPort = %d, want default 10970", cfg.WebPort)
	}
	if cfg.Digest.Cron != "0 8 * * *" {
		t.Errorf("Digest.Cron = %q, want the default schedule", cfg.Digest.Cron)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("RINA_CONFIG", "")
	t.Chdir(t.TempDir())
	if _, err := LoadConfig(); err == nil {
		t.Error("expected an error with no config file present")
	}
}

func TestPostDeserializeClampsInvalidValues(t *testing.T) {
	cfg := Config{AgentCommand: "  agent  ", MaxAttachments: -1, MaxImageKB: 0}
	cfg.postDeserialize()

	if cfg.AgentCommand != "agent" {
		t.Errorf("AgentCommand = %q, want trimmed", cfg.AgentCommand)
	}
	if cfg.MaxAttachments != 6 {
		t.Errorf("MaxAttachments = %d, want 6", cfg.MaxAttachments)
	}
	if cfg.MaxImageKB != 4096 {
		t.Errorf("MaxImageKB = %d, want 4096", cfg.MaxImageKB)
	}
}

func TestValidate(t *testing.T) {
	token := "secret"
	empty := ""

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"telegram only", func(c *Config) { c.TelegramBotToken = "t" }, false},
		{"web only localhost", func(c *Config) { c.WebEnabled = true }, false},
		{"no channel", func(c *Config) {}, true},
		{"missing agent command", func(c *Config) {
			c.AgentCommand = ""
			c.TelegramBotToken = "t"
		}, true},
		{"public web without token", func(c *Config) {
			c.WebEnabled = true
			c.WebHost = "0.0.0.0"
		}, true},
		{"public web with empty token", func(c *Config) {
			c.WebEnabled = true
			c.WebHost = "0.0.0.0"
			c.WebAuthToken = &empty
		}, true},
		{"public web with token", func(c *Config) {
			c.WebEnabled = true
			c.WebHost = "0.0.0.0"
			c.WebAuthToken = &token
		}, false},
		{"digest without feeds", func(c *Config) {
			c.TelegramBotToken = "t"
			c.Digest.Enabled = true
			c.Digest.ThreadID = "telegram:1"
		}, true},
		{"digest without thread", func(c *Config) {
			c.TelegramBotToken = "t"
			c.Digest.Enabled = true
			c.Digest.Feeds = []string{"https://example.com/rss"}
		}, true},
		{"digest complete", func(c *Config) {
			c.TelegramBotToken = "t"
			c.Digest.Enabled = true
			c.Digest.Feeds = []string{"https://example.com/rss"}
			c.Digest.ThreadID = "telegram:1"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/rina"
	if got := cfg.DBPath(); got != "/var/lib/rina/rina.db" {
		t.Errorf("DBPath = %q", got)
	}
	if got := cfg.LogsDir(); got != "/var/lib/rina/logs" {
		t.Errorf("LogsDir = %q", got)
	}
}
