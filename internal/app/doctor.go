package app

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wdchenxyz/agent-rina/internal/config"
	"github.com/wdchenxyz/agent-rina/internal/storage"
)

// Check is one preflight diagnostic result.
type Check struct {
	Name   string
	Status string // "ok", "warn", "fail"
	Detail string
}

// RunDoctor runs preflight diagnostics against the loaded config.
func RunDoctor(cfg *config.Config) []Check {
	var checks []Check

	if err := cfg.Validate(); err != nil {
		checks = append(checks, Check{"config", "fail", err.Error()})
	} else {
		checks = append(checks, Check{"config", "ok", "valid"})
	}

	if path, err := exec.LookPath(cfg.AgentCommand); err != nil {
		checks = append(checks, Check{"agent", "fail", fmt.Sprintf("%q not found on PATH", cfg.AgentCommand)})
	} else {
		checks = append(checks, Check{"agent", "ok", path})
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		checks = append(checks, Check{"data_dir", "fail", err.Error()})
	} else {
		checks = append(checks, Check{"data_dir", "ok", cfg.DataDir})
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		checks = append(checks, Check{"database", "fail", err.Error()})
	} else {
		db.Close()
		checks = append(checks, Check{"database", "ok", cfg.DBPath()})
	}

	if cfg.TelegramBotToken == "" {
		checks = append(checks, Check{"telegram", "warn", "not configured"})
	} else {
		checks = append(checks, Check{"telegram", "ok", "@" + cfg.BotUsername})
	}

	if cfg.WebEnabled {
		checks = append(checks, Check{"web", "ok", fmt.Sprintf("%s:%d", cfg.WebHost, cfg.WebPort)})
	} else {
		checks = append(checks, Check{"web", "warn", "disabled"})
	}

	if cfg.Digest.Enabled {
		checks = append(checks, Check{"digest", "ok", fmt.Sprintf("%d feeds, cron %q", len(cfg.Digest.Feeds), cfg.Digest.Cron)})
	} else {
		checks = append(checks, Check{"digest", "warn", "disabled"})
	}

	return checks
}

// FormatChecks renders doctor output for the terminal.
func FormatChecks(checks []Check) string {
	var b strings.Builder
	for _, c := range checks {
		mark := "✓"
		switch c.Status {
		case "fail":
			mark = "✗"
		case "warn":
			mark = "!"
		}
		fmt.Fprintf(&b, "  %s %-10s %s\n", mark, c.Name, c.Detail)
	}
	return b.String()
}
