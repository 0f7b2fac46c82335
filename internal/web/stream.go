package web

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wdchenxyz/agent-rina/internal/bridge"
	"github.com/wdchenxyz/agent-rina/internal/core"
	"github.com/wdchenxyz/agent-rina/internal/storage"
)

// Web clients render incrementally, so no practical segment limit applies.
const webMaxMessageLength = 1 << 20

// WebThread is one browser conversation. It renders incrementally: fragments
// are forwarded to the client as SSE events the moment they arrive.
type WebThread struct {
	state    *WebState
	threadID string
	w        http.ResponseWriter
	flusher  http.Flusher

	// Fragments arrive from the relay goroutine while status posts come
	// from the dispatching one.
	mu sync.Mutex
}

func (t *WebThread) ID() string { return t.threadID }

func (t *WebThread) MaxMessageLength() int { return webMaxMessageLength }

func (t *WebThread) Post(ctx context.Context, p bridge.Payload) error {
	return t.emit(map[string]string{"type": "message", "text": p.Markdown})
}

// PostLive forwards each fragment to the client as its own SSE event. A write
// failure means the client is gone; the fragment source notices when we stop
// pulling.
func (t *WebThread) PostLive(ctx context.Context, fragments iter.Seq[string]) error {
	if err := t.emit(map[string]string{"type": "segment_start"}); err != nil {
		return err
	}
	for fragment := range fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.emit(map[string]string{"type": "fragment", "text": fragment}); err != nil {
			return err
		}
	}
	return t.emit(map[string]string{"type": "segment_end"})
}

func (t *WebThread) History(ctx context.Context) ([]bridge.ThreadMessage, error) {
	stored, err := t.state.DB.GetThreadMessages(t.threadID, t.state.Config.MaxHistoryMessages)
	if err != nil {
		return nil, err
	}
	msgs := make([]bridge.ThreadMessage, 0, len(stored))
	for _, sm := range stored {
		msgs = append(msgs, bridge.ThreadMessage{
			ID:       sm.ID,
			FromMe:   sm.IsFromBot,
			AuthorID: sm.AuthorID,
			Text:     sm.Content,
		})
	}
	return msgs, nil
}

func (t *WebThread) emit(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return core.WrapNetwork(fmt.Errorf("web stream write: %w", err))
	}
	t.flusher.Flush()
	return nil
}

// handleChat accepts one chat message and streams the reply over SSE.
func (s *WebState) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ThreadKey string `json:"thread_key"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	threadKey := body.ThreadKey
	if threadKey == "" {
		threadKey = "main"
	}
	threadID := "web:" + threadKey

	if !s.acquireInflight(threadID) {
		jsonError(w, "a run is already in progress for this thread", http.StatusTooManyRequests)
		return
	}
	defer s.releaseInflight(threadID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	triggerID := "web_" + uuid.NewString()
	if err := s.DB.StoreMessage(storage.StoredMessage{
		ID:        triggerID,
		ThreadID:  threadID,
		AuthorID:  "user",
		Content:   body.Message,
		IsFromBot: false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	thread := &WebThread{state: s, threadID: threadID, w: w, flusher: flusher}

	res, err := s.runThreadTurn(r.Context(), thread, triggerID, body.Message)
	if err != nil {
		log.Printf("[web] thread %s: run failed: %v", threadID, err)
		thread.emit(map[string]string{"type": "error", "text": "Sorry, something went wrong while answering."})
		return
	}

	if res.FullText != "" {
		s.DB.StoreMessage(storage.StoredMessage{
			ID:        "web_bot_" + uuid.NewString(),
			ThreadID:  threadID,
			AuthorID:  "rina",
			Content:   res.FullText,
			IsFromBot: true,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	thread.emit(map[string]string{"type": "done"})
}

func (s *WebState) runThreadTurn(ctx context.Context, thread bridge.Thread, triggerID, triggerText string) (bridge.Result, error) {
	history, err := thread.History(ctx)
	if err != nil {
		return bridge.Result{}, err
	}

	turns, warnings := s.Assembler.Assemble(ctx, history, triggerID)
	if len(warnings) > 0 {
		notice := "Note: some attachments were left out: " + strings.Join(warnings, "; ")
		if nerr := thread.Post(ctx, bridge.Payload{Markdown: notice}); nerr != nil {
			log.Printf("[web] thread %s: warning notice delivery failed: %v", thread.ID(), nerr)
		}
	}

	turns = append(turns, core.TextTurn(core.RoleUser, triggerText))
	return s.Turns.Run(ctx, thread, turns)
}
