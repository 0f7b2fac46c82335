package agent

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"

	"github.com/wdchenxyz/agent-rina/internal/core"
)

// CLIRunner drives an external agent CLI. The prompt is written to the
// process's stdin as JSON turns; the event stream arrives on stdout as one
// JSON object per line.
type CLIRunner struct {
	Command string
	Args    []string
}

func NewCLIRunner(command string, args []string) *CLIRunner {
	return &CLIRunner{Command: command, Args: args}
}

// wireTurn / wirePart mirror core.Turn for the CLI's stdin format.
type wireTurn struct {
	Role    string     `json:"role"`
	Content []wirePart `json:"content"`
}

type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Name     string `json:"name,omitempty"`
	Data     string `json:"data,omitempty"` // base64
}

// wireEvent is one stdout line from the CLI.
type wireEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Output    string `json:"output,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (r *CLIRunner) Stream(ctx context.Context, turns []core.Turn, opts StreamOptions, events chan<- Event) error {
	args := append([]string(nil), r.Args...)
	if opts.MaxSteps > 0 {
		args = append(args, "--max-steps", strconv.Itoa(opts.MaxSteps))
	}
	resuming := opts.ResumeSessionID != ""
	if resuming {
		args = append(args, "--resume", opts.ResumeSessionID)
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if resuming {
			return core.NewResumeError("agent process failed to start", err)
		}
		return fmt.Errorf("starting agent process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- json.NewEncoder(stdin).Encode(encodeTurns(turns))
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var we wireEvent
		if err := json.Unmarshal(line, &we); err != nil {
			log.Printf("[agent] skipping malformed event line: %v", err)
			continue
		}
		ev, ok := decodeEvent(we)
		if !ok {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			cmd.Wait()
			return ctx.Err()
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if resuming && errors.As(err, &exitErr) {
			return core.NewResumeError("agent process crashed while resuming", err)
		}
		return fmt.Errorf("agent process: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("reading agent events: %w", scanErr)
	}
	if err := <-writeErr; err != nil {
		return fmt.Errorf("writing agent prompt: %w", err)
	}
	return nil
}

func encodeTurns(turns []core.Turn) []wireTurn {
	out := make([]wireTurn, 0, len(turns))
	for _, t := range turns {
		wt := wireTurn{Role: string(t.Role)}
		for _, p := range t.Parts {
			switch p.Kind {
			case core.PartText:
				wt.Content = append(wt.Content, wirePart{Type: "text", Text: p.Text})
			case core.PartImage:
				wt.Content = append(wt.Content, wirePart{
					Type:     "image",
					MimeType: p.MimeType,
					Data:     base64.StdEncoding.EncodeToString(p.Data),
				})
			case core.PartFile:
				wt.Content = append(wt.Content, wirePart{
					Type:     "file",
					Name:     p.Name,
					MimeType: p.MimeType,
					Data:     base64.StdEncoding.EncodeToString(p.Data),
				})
			}
		}
		out = append(out, wt)
	}
	return out
}

func decodeEvent(we wireEvent) (Event, bool) {
	switch EventType(we.Type) {
	case EventTextStart:
		return TextStartEvent(), true
	case EventTextDelta:
		return TextDeltaEvent(we.Text), true
	case EventTextEnd:
		return TextEndEvent(), true
	case EventToolStart:
		return ToolStartEvent(we.ToolName), true
	case EventToolResult:
		return ToolResultEvent(we.ToolName, we.Output), true
	case EventSessionInit:
		return SessionInitEvent(we.SessionID), true
	default:
		return Event{}, false
	}
}
