package channels

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wdchenxyz/agent-rina/internal/bridge"
	"github.com/wdchenxyz/agent-rina/internal/core"
	"github.com/wdchenxyz/agent-rina/internal/storage"
)

const telegramMaxMessageLength = 4096

// TelegramAdapter connects rina to Telegram via long polling. Telegram has no
// incremental rendering, so its threads are buffering: replies are segmented
// to the 4096-character limit and posted chunk by chunk.
type TelegramAdapter struct {
	bot           *tgbotapi.BotAPI
	botUsername   string
	allowedGroups []int64
	db            *storage.Database
	maxHistory    int
}

func NewTelegramAdapter(token, botUsername string, allowedGroups []int64, db *storage.Database, maxHistory int) (*TelegramAdapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	username := botUsername
	if username == "" {
		username = bot.Self.UserName
	}

	return &TelegramAdapter{
		bot:           bot,
		botUsername:   username,
		allowedGroups: allowedGroups,
		db:            db,
		maxHistory:    maxHistory,
	}, nil
}

// Thread returns the Thread handle for a chat id.
func (a *TelegramAdapter) Thread(chatID int64) *TelegramThread {
	return &TelegramThread{adapter: a, chatID: chatID}
}

// TelegramThread implements Thread for one Telegram chat.
type TelegramThread struct {
	adapter *TelegramAdapter
	chatID  int64
}

func (t *TelegramThread) ID() string {
	return "telegram:" + strconv.FormatInt(t.chatID, 10)
}

func (t *TelegramThread) MaxMessageLength() int { return telegramMaxMessageLength }

func (t *TelegramThread) Post(ctx context.Context, p bridge.Payload) error {
	bot := t.adapter.bot

	if p.Markdown != "" {
		msg := tgbotapi.NewMessage(t.chatID, escapeMarkdownV2(p.Markdown))
		msg.ParseMode = "MarkdownV2"
		if _, err := bot.Send(msg); err != nil {
			// Fallback to plain text on formatting rejections.
			msg.ParseMode = ""
			msg.Text = p.Markdown
			if _, err := bot.Send(msg); err != nil {
				return core.WrapNetwork(err)
			}
		}
	}

	for _, f := range p.Files {
		doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileBytes{Name: f.Name, Bytes: f.Data})
		if _, err := bot.Send(doc); err != nil {
			return core.WrapNetwork(err)
		}
	}
	return nil
}

func (t *TelegramThread) History(ctx context.Context) ([]bridge.ThreadMessage, error) {
	stored, err := t.adapter.db.GetThreadMessages(t.ID(), t.adapter.maxHistory)
	if err != nil {
		return nil, core.WrapDBError(err)
	}

	msgs := make([]bridge.ThreadMessage, 0, len(stored))
	for _, m := range stored {
		tm := bridge.ThreadMessage{
			ID:       m.ID,
			FromMe:   m.IsFromBot,
			AuthorID: m.AuthorID,
			Text:     m.Content,
		}
		for _, a := range m.Attachments {
			fileID := a.FileRef
			tm.Attachments = append(tm.Attachments, bridge.Attachment{
				Kind:     a.Kind,
				MimeType: a.MimeType,
				Name:     a.Name,
				URL:      a.URL,
				Fetch: func(ctx context.Context) ([]byte, error) {
					return t.adapter.downloadFile(ctx, fileID)
				},
			})
		}
		msgs = append(msgs, tm)
	}
	return msgs, nil
}

func (a *TelegramAdapter) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, core.WrapNetwork(err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", file.Link(a.bot.Token), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, core.WrapNetwork(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// TelegramDeps bundles what the message handler needs per turn.
type TelegramDeps struct {
	DB        *storage.Database
	Turns     *bridge.TurnRunner
	Assembler *bridge.Assembler
	Retry     *bridge.Retry
}

// StartTelegramBot runs the Telegram long-poll loop until ctx is done.
func StartTelegramBot(ctx context.Context, adapter *TelegramAdapter, deps *TelegramDeps) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := adapter.bot.GetUpdatesChan(u)

	log.Printf("[telegram] bot @%s started", adapter.botUsername)

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			go handleTelegramMessage(ctx, adapter, deps, update.Message)
		}
	}
}

func handleTelegramMessage(ctx context.Context, adapter *TelegramAdapter, deps *TelegramDeps, msg *tgbotapi.Message) {
	thread := adapter.Thread(msg.Chat.ID)
	isPrivate := msg.Chat.IsPrivate()

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	hasPhoto := len(msg.Photo) > 0
	if content == "" && !hasPhoto {
		return
	}

	// Persist the inbound message with its attachment metadata before any
	// gating, so group context is complete even for messages we skip.
	stored := storage.StoredMessage{
		ID:        "tg_" + strconv.Itoa(msg.MessageID),
		ThreadID:  thread.ID(),
		AuthorID:  strconv.FormatInt(msg.From.ID, 10),
		Content:   content,
		IsFromBot: false,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC().Format(time.RFC3339),
	}
	if hasPhoto {
		// Largest rendition only.
		photo := msg.Photo[len(msg.Photo)-1]
		stored.Attachments = append(stored.Attachments, storage.StoredAttachment{
			Kind:     "image",
			MimeType: "image/jpeg",
			FileRef:  photo.FileID,
		})
	}
	if msg.Document != nil {
		stored.Attachments = append(stored.Attachments, storage.StoredAttachment{
			Kind:     "file",
			MimeType: msg.Document.MimeType,
			Name:     msg.Document.FileName,
			FileRef:  msg.Document.FileID,
		})
	}
	if err := deps.DB.StoreMessage(stored); err != nil {
		log.Printf("[telegram] storing message: %v", err)
	}

	if !isPrivate && len(adapter.allowedGroups) > 0 {
		allowed := false
		for _, gid := range adapter.allowedGroups {
			if gid == msg.Chat.ID {
				allowed = true
				break
			}
		}
		if !allowed {
			return
		}
	}

	// Groups require an @mention; private chats always respond.
	if !isPrivate {
		mention := "@" + adapter.botUsername
		if !strings.Contains(content, mention) {
			return
		}
		content = strings.TrimSpace(strings.ReplaceAll(content, mention, ""))
	}

	log.Printf("[telegram] thread %s: turn from %s: %s", thread.ID(), stored.AuthorID, truncate(content, 200))

	// Typing indicator while the agent works.
	typingCtx, cancelTyping := context.WithCancel(ctx)
	defer cancelTyping()
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			adapter.bot.Send(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	res, err := runThreadTurn(ctx, thread, deps, stored.ID, content)
	cancelTyping()
	if err != nil {
		log.Printf("[telegram] thread %s: turn error: %v", thread.ID(), err)
		failure := tgbotapi.NewMessage(msg.Chat.ID, "Sorry, something went wrong while processing your message.")
		adapter.bot.Send(failure)
		return
	}

	if res.FullText != "" {
		deps.DB.StoreMessage(storage.StoredMessage{
			ID:        "tg_bot_" + strconv.FormatInt(time.Now().UnixNano(), 10),
			ThreadID:  thread.ID(),
			AuthorID:  adapter.botUsername,
			Content:   res.FullText,
			IsFromBot: true,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// runThreadTurn assembles history, surfaces attachment warnings, and runs the
// dispatcher pipeline for one triggering message. Shared by all buffering
// channels.
func runThreadTurn(ctx context.Context, thread bridge.Thread, deps *TelegramDeps, triggerID, triggerText string) (bridge.Result, error) {
	history, err := thread.History(ctx)
	if err != nil {
		return bridge.Result{}, err
	}

	turns, warnings := deps.Assembler.Assemble(ctx, history, triggerID)
	if len(warnings) > 0 {
		notice := "Note: some attachments were left out: " + strings.Join(warnings, "; ")
		if nerr := deps.Retry.Do(ctx, func() error {
			return thread.Post(ctx, bridge.Payload{Markdown: notice})
		}); nerr != nil {
			log.Printf("[channels] thread %s: warning notice delivery failed: %v", thread.ID(), nerr)
		}
	}

	turns = append(turns, core.TextTurn(core.RoleUser, triggerText))
	return deps.Turns.Run(ctx, thread, turns)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// escapeMarkdownV2 converts text to Telegram MarkdownV2 format. Fenced code
// blocks and inline code spans are preserved with their content escaped per
// the Telegram spec (only \ and ` inside code); all other special characters
// are escaped in regular text.
func escapeMarkdownV2(text string) string {
	var buf strings.Builder
	i := 0
	n := len(text)
	for i < n {
		// Fenced code block: ```[lang]\n...\n```
		if i+2 < n && text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			end := strings.Index(text[i+3:], "```")
			if end >= 0 {
				content := text[i+3 : i+3+end]
				content = strings.ReplaceAll(content, `\`, `\\`)
				content = strings.ReplaceAll(content, "`", "\\`")
				buf.WriteString("```")
				buf.WriteString(content)
				buf.WriteString("```")
				i += 3 + end + 3
				continue
			}
			buf.WriteString("\\`\\`\\`")
			i += 3
			continue
		}
		// Inline code span: `...`
		if text[i] == '`' {
			end := strings.IndexByte(text[i+1:], '`')
			if end >= 0 {
				content := text[i+1 : i+1+end]
				content = strings.ReplaceAll(content, `\`, `\\`)
				content = strings.ReplaceAll(content, "`", "\\`")
				buf.WriteByte('`')
				buf.WriteString(content)
				buf.WriteByte('`')
				i += 2 + end
				continue
			}
			buf.WriteString("\\`")
			i++
			continue
		}
		c := text[i]
		switch c {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			buf.WriteByte('\\')
		}
		buf.WriteByte(c)
		i++
	}
	return buf.String()
}
