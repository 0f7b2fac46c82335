package bridge

import (
	"context"
	"log"

	"github.com/wdchenxyz/agent-rina/internal/agent"
	"github.com/wdchenxyz/agent-rina/internal/core"
)

// SessionStore persists the per-thread agent session handle.
type SessionStore interface {
	GetThreadSession(threadID string) (string, error)
	SetThreadSession(threadID, sessionID string) error
	ClearThreadSession(threadID string) error
}

const resumeFailureNotice = "I couldn't restore the earlier context of this conversation, so I'm starting fresh."

// TurnRunner runs one conversation turn end to end: resume hint lookup,
// agent stream dispatch, session persistence, and the fresh-session fallback
// when resuming fails fatally.
type TurnRunner struct {
	Runner   agent.Runner
	Store    SessionStore
	Retry    *Retry
	MaxSteps int
}

// Run dispatches the turn. On a resume-fatal runtime error the stored session
// is cleared, the user is notified, and the same turn is retried once with no
// resume hint. Any other error propagates; partial output already delivered
// stays in place.
func (t *TurnRunner) Run(ctx context.Context, thread Thread, turns []core.Turn) (Result, error) {
	resume, err := t.Store.GetThreadSession(thread.ID())
	if err != nil {
		log.Printf("[bridge] thread %s: session lookup error: %v", thread.ID(), err)
		resume = ""
	}

	res, err := t.dispatch(ctx, thread, turns, resume)
	if err != nil && resume != "" && core.IsResumeFatal(err) {
		log.Printf("[bridge] thread %s: resume failed fatally, falling back to fresh session: %v", thread.ID(), err)
		if cerr := t.Store.ClearThreadSession(thread.ID()); cerr != nil {
			log.Printf("[bridge] thread %s: clearing session: %v", thread.ID(), cerr)
		}
		if nerr := t.Retry.Do(ctx, func() error {
			return thread.Post(ctx, Payload{Markdown: resumeFailureNotice})
		}); nerr != nil {
			log.Printf("[bridge] thread %s: resume notice delivery failed: %v", thread.ID(), nerr)
		}
		res, err = t.dispatch(ctx, thread, turns, "")
	}

	if err == nil && res.SessionID != "" {
		if serr := t.Store.SetThreadSession(thread.ID(), res.SessionID); serr != nil {
			log.Printf("[bridge] thread %s: persisting session: %v", thread.ID(), serr)
		}
	}
	return res, err
}

func (t *TurnRunner) dispatch(ctx context.Context, thread Thread, turns []core.Turn, resume string) (Result, error) {
	events := make(chan agent.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- t.Runner.Stream(ctx, turns, agent.StreamOptions{
			ResumeSessionID: resume,
			MaxSteps:        t.MaxSteps,
		}, events)
		close(events)
	}()

	d := NewDispatcher(thread, t.Retry)
	res, derr := d.Run(ctx, events)
	if derr != nil {
		// Keep draining so the producer never blocks on a dead consumer.
		go func() {
			for range events {
			}
		}()
		<-done
		return res, derr
	}
	if serr := <-done; serr != nil {
		return res, serr
	}
	return res, nil
}
