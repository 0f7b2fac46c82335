package bridge

import (
	"context"
	"log"
	"strings"

	"github.com/wdchenxyz/agent-rina/internal/agent"
	"github.com/wdchenxyz/agent-rina/internal/core"
)

// toolStatusPhrases maps tool names to user-visible notices. Tools without an
// entry produce no notice.
var toolStatusPhrases = map[string]string{
	"web_search": "Searching the web...",
	"web_fetch":  "Reading a page...",
	"bash":       "Running a command...",
	"read_file":  "Reading a file...",
	"write_file": "Writing a file...",
	"edit_file":  "Editing a file...",
}

// Result summarizes one dispatcher run.
type Result struct {
	// SessionID is the durable session handle captured from SessionInit,
	// empty if the stream carried none.
	SessionID string
	// FullText accumulates every text delta of the run, across segments,
	// for trailing post-processing and message-log storage.
	FullText string
}

// Dispatcher walks the agent event stream once and turns it into a
// deterministic sequence of delivery actions on a thread. Segments go through
// a StreamRelay when the thread supports live streaming, otherwise they are
// buffered and re-segmented to the thread's message-size limit. All
// deliveries for the thread are strictly sequential.
type Dispatcher struct {
	thread Thread
	retry  *Retry

	live      bool
	inSegment bool
	relay     *StreamRelay
	segment   strings.Builder
	full      strings.Builder
	sessionID string
}

func NewDispatcher(thread Thread, retry *Retry) *Dispatcher {
	return &Dispatcher{
		thread: thread,
		retry:  retry,
		live:   SupportsLiveStream(thread),
	}
}

// Run consumes events until the channel closes. A stream that ends while a
// segment is open still delivers the partial segment. On a delivery error the
// dispatcher aborts; content already posted stays in place and the caller is
// responsible for a user-visible failure notice.
func (d *Dispatcher) Run(ctx context.Context, events <-chan agent.Event) (Result, error) {
	for ev := range events {
		if err := d.handle(ctx, ev); err != nil {
			return d.result(), err
		}
	}
	if d.inSegment {
		if err := d.closeSegment(ctx); err != nil {
			return d.result(), err
		}
	}
	return d.result(), nil
}

func (d *Dispatcher) result() Result {
	return Result{SessionID: d.sessionID, FullText: d.full.String()}
}

func (d *Dispatcher) handle(ctx context.Context, ev agent.Event) error {
	switch ev.Type {
	case agent.EventTextStart:
		if d.inSegment {
			log.Printf("[bridge] thread %s: text_start inside open segment, closing implicitly", d.thread.ID())
			if err := d.closeSegment(ctx); err != nil {
				return err
			}
		}
		d.openSegment(ctx)

	case agent.EventTextDelta:
		if !d.inSegment {
			log.Printf("[bridge] thread %s: text_delta outside segment, opening implicitly", d.thread.ID())
			d.openSegment(ctx)
		}
		if d.live {
			d.relay.Push(ev.Text)
		} else {
			d.segment.WriteString(ev.Text)
		}
		d.full.WriteString(ev.Text)

	case agent.EventTextEnd:
		if !d.inSegment {
			log.Printf("[bridge] thread %s: text_end without open segment, ignoring", d.thread.ID())
			return nil
		}
		return d.closeSegment(ctx)

	case agent.EventToolStart:
		phrase, ok := toolStatusPhrases[ev.ToolName]
		if !ok {
			return nil
		}
		// Sequential delivery keeps status notices in event-arrival order.
		return d.retry.Do(ctx, func() error {
			return d.thread.Post(ctx, Payload{Markdown: phrase})
		})

	case agent.EventToolResult:
		log.Printf("[bridge] thread %s: tool %s result (%d bytes)", d.thread.ID(), ev.ToolName, len(ev.Output))

	case agent.EventSessionInit:
		d.sessionID = ev.SessionID
	}
	return nil
}

func (d *Dispatcher) openSegment(ctx context.Context) {
	if d.live {
		d.relay = OpenRelay(ctx, d.thread.(LiveThread))
	} else {
		d.segment.Reset()
	}
	d.inSegment = true
}

func (d *Dispatcher) closeSegment(ctx context.Context) error {
	d.inSegment = false

	if d.live {
		// A live post consumes its fragment sequence exactly once, so it
		// cannot be replayed on failure; the close error propagates as is.
		err := d.relay.Close()
		d.relay = nil
		return err
	}

	text := strings.TrimSpace(d.segment.String())
	d.segment.Reset()
	if text == "" {
		return nil
	}
	for _, chunk := range core.SplitText(text, d.thread.MaxMessageLength()) {
		chunk := chunk
		if err := d.retry.Do(ctx, func() error {
			return d.thread.Post(ctx, Payload{Markdown: chunk})
		}); err != nil {
			return err
		}
	}
	return nil
}
