package agent

import (
	"context"
	"strings"

	"github.com/wdchenxyz/agent-rina/internal/core"
)

// StreamOptions control one agent run.
type StreamOptions struct {
	// ResumeSessionID is an opaque handle to prior conversational state.
	// Empty starts a fresh session.
	ResumeSessionID string
	// MaxSteps bounds the agent's tool-use iterations.
	MaxSteps int
}

// Runner produces the agent event stream for a prompt. Stream pushes events
// in emission order onto events and returns when the run completes; it never
// closes the channel (the caller owns it).
type Runner interface {
	Stream(ctx context.Context, turns []core.Turn, opts StreamOptions, events chan<- Event) error
}

// CollectText runs the stream to completion and accumulates all text deltas,
// for callers that want a whole response without platform delivery.
func CollectText(ctx context.Context, r Runner, turns []core.Turn, opts StreamOptions) (string, error) {
	events := make(chan Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- r.Stream(ctx, turns, opts, events)
		close(events)
	}()

	var b strings.Builder
	for ev := range events {
		if ev.Type == EventTextDelta {
			b.WriteString(ev.Text)
		}
	}
	return b.String(), <-done
}
