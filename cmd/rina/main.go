package main

import (
	"fmt"
	"os"

	"github.com/wdchenxyz/agent-rina/internal/app"
	"github.com/wdchenxyz/agent-rina/internal/config"
	"github.com/wdchenxyz/agent-rina/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		printUsage()
		return 1
	}

	switch os.Args[1] {
	case "start":
		return runStart()
	case "doctor":
		return runDoctor()
	case "version":
		fmt.Printf("rina %s\n", version)
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println(`rina - streaming bridge between a CLI agent and chat platforms

Usage:
  rina <command>

Commands:
  start     Start the bot
  doctor    Run preflight diagnostics
  version   Print version
  help      Show this help`)
}

func runStart() int {
	cfg, db, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		return 1
	}
	defer db.Close()

	if os.Getenv("RINA_LOG_TO_FILE") != "" {
		if err := logging.InitFileLogging(cfg.LogsDir()); err != nil {
			fmt.Fprintf(os.Stderr, "logging init error: %v\n", err)
			return 1
		}
	} else {
		logging.InitConsoleLogging()
	}

	if err := app.Run(cfg, db); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		return 1
	}
	return 0
}

func runDoctor() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	checks := app.RunDoctor(cfg)
	fmt.Print(app.FormatChecks(checks))

	for _, c := range checks {
		if c.Status == "fail" {
			return 1
		}
	}
	return 0
}
