package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wdchenxyz/agent-rina/internal/agent"
	"github.com/wdchenxyz/agent-rina/internal/bridge"
	"github.com/wdchenxyz/agent-rina/internal/channels"
	"github.com/wdchenxyz/agent-rina/internal/config"
	"github.com/wdchenxyz/agent-rina/internal/digest"
	"github.com/wdchenxyz/agent-rina/internal/storage"
	"github.com/wdchenxyz/agent-rina/internal/web"
)

// Run wires everything together and blocks until shutdown.
func Run(cfg *config.Config, db *storage.Database) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[app] shutting down...")
		cancel()
	}()

	runner := agent.NewCLIRunner(cfg.AgentCommand, cfg.AgentArgs)
	log.Printf("[app] agent command: %s", cfg.AgentCommand)

	retry := bridge.NewRetry()
	assembler := bridge.NewAssembler(cfg.MaxAttachments, cfg.MaxImageKB*1024, cfg.MaxFileKB*1024)
	turns := &bridge.TurnRunner{
		Runner:   runner,
		Store:    db,
		Retry:    retry,
		MaxSteps: cfg.AgentMaxSteps,
	}

	var telegramAdapter *channels.TelegramAdapter
	if cfg.TelegramBotToken != "" {
		var err error
		telegramAdapter, err = channels.NewTelegramAdapter(cfg.TelegramBotToken, cfg.BotUsername, cfg.AllowedGroups, db, cfg.MaxHistoryMessages)
		if err != nil {
			return fmt.Errorf("creating telegram adapter: %w", err)
		}
		log.Printf("[app] telegram: @%s", cfg.BotUsername)
	}

	g, gctx := errgroup.WithContext(ctx)

	if telegramAdapter != nil {
		deps := &channels.TelegramDeps{
			DB:        db,
			Turns:     turns,
			Assembler: assembler,
			Retry:     retry,
		}
		g.Go(func() error {
			channels.StartTelegramBot(gctx, telegramAdapter, deps)
			return nil
		})
	}

	if cfg.WebEnabled {
		g.Go(func() error {
			return web.StartWebServer(gctx, cfg, db, turns, assembler, retry)
		})
	}

	if cfg.Digest.Enabled {
		resolver := threadResolver(telegramAdapter)
		dg, err := digest.New(cfg.Digest, db, runner, retry, resolver)
		if err != nil {
			return fmt.Errorf("creating digest: %w", err)
		}
		if err := dg.Spawn(gctx); err != nil {
			return err
		}
	}

	return g.Wait()
}

// threadResolver maps configured thread IDs ("telegram:<chat_id>") to
// postable threads. Web threads have no standing connection to post to.
func threadResolver(tg *channels.TelegramAdapter) digest.ThreadResolver {
	return func(threadID string) (bridge.Thread, error) {
		rest, ok := strings.CutPrefix(threadID, "telegram:")
		if !ok {
			return nil, fmt.Errorf("thread %q is not addressable for scheduled posts", threadID)
		}
		if tg == nil {
			return nil, fmt.Errorf("thread %q requires the telegram channel", threadID)
		}
		chatID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id in %q: %w", threadID, err)
		}
		return tg.Thread(chatID), nil
	}
}
