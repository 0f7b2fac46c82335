package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wdchenxyz/agent-rina/internal/agent"
	"github.com/wdchenxyz/agent-rina/internal/core"
)

// fakeThread is a buffering platform thread that records posts. errs is
// consumed one per Post call; nil entries mean success.
type fakeThread struct {
	id     string
	maxLen int
	mu     sync.Mutex
	posts  []string
	errs   []error
}

func (t *fakeThread) ID() string {
	if t.id == "" {
		return "thread-1"
	}
	return t.id
}

func (t *fakeThread) MaxMessageLength() int {
	if t.maxLen == 0 {
		return 4096
	}
	return t.maxLen
}

func (t *fakeThread) Post(ctx context.Context, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if len(t.errs) > 0 {
		err, t.errs = t.errs[0], t.errs[1:]
	}
	if err != nil {
		return err
	}
	t.posts = append(t.posts, p.Markdown)
	return nil
}

func (t *fakeThread) History(ctx context.Context) ([]ThreadMessage, error) {
	return nil, nil
}

// fastRetry keeps test backoff delays negligible.
func fastRetry() *Retry {
	return &Retry{Backoff: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}
}

func runDispatcher(t *testing.T, thread Thread, events []agent.Event) (Result, error) {
	t.Helper()
	ch := make(chan agent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return NewDispatcher(thread, fastRetry()).Run(context.Background(), ch)
}

func TestDispatcherBuffersSegmentUntilTextEnd(t *testing.T) {
	thread := &fakeThread{}
	res, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("Hel"),
		agent.TextDeltaEvent("lo"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 1 || thread.posts[0] != "Hello" {
		t.Errorf("posts = %v, want [Hello]", thread.posts)
	}
	if res.FullText != "Hello" {
		t.Errorf("FullText = %q, want %q", res.FullText, "Hello")
	}
}

func TestDispatcherSegmentsLongText(t *testing.T) {
	thread := &fakeThread{maxLen: 4000}
	para := strings.Repeat("a", 3000)
	res, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent(para + "\n\n"),
		agent.TextDeltaEvent(para + "\n\n"),
		agent.TextDeltaEvent(para),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 3 {
		t.Fatalf("got %d posts, want 3", len(thread.posts))
	}
	for i, p := range thread.posts {
		if len(p) > 4000 {
			t.Errorf("post %d: %d bytes exceeds limit", i, len(p))
		}
	}
	if res.FullText != para+"\n\n"+para+"\n\n"+para {
		t.Error("FullText does not reproduce the full response")
	}
}

func TestDispatcherDeliversPartialSegmentAtStreamEnd(t *testing.T) {
	thread := &fakeThread{}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("partial answer"),
		// No TextEnd: the stream died mid-segment.
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 1 || thread.posts[0] != "partial answer" {
		t.Errorf("posts = %v, want the partial segment delivered", thread.posts)
	}
}

func TestDispatcherToolNoticesInterleaveSegments(t *testing.T) {
	thread := &fakeThread{}
	res, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("Let me check."),
		agent.TextEndEvent(),
		agent.ToolStartEvent("web_search"),
		agent.ToolResultEvent("web_search", "results"),
		agent.ToolStartEvent("obscure_tool"),
		agent.TextStartEvent(),
		agent.TextDeltaEvent("Found it."),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"Let me check.", "Searching the web...", "Found it."}
	if len(thread.posts) != len(want) {
		t.Fatalf("posts = %v, want %v", thread.posts, want)
	}
	for i := range want {
		if thread.posts[i] != want[i] {
			t.Errorf("post %d: got %q, want %q", i, thread.posts[i], want[i])
		}
	}
	if res.FullText != "Let me check.Found it." {
		t.Errorf("FullText = %q", res.FullText)
	}
}

func TestDispatcherRecoversFromMissingTextEnd(t *testing.T) {
	thread := &fakeThread{}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("first"),
		agent.TextStartEvent(), // arrives while the segment is still open
		agent.TextDeltaEvent("second"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"first", "second"}
	if len(thread.posts) != 2 || thread.posts[0] != want[0] || thread.posts[1] != want[1] {
		t.Errorf("posts = %v, want %v", thread.posts, want)
	}
}

func TestDispatcherOpensSegmentForStrayDelta(t *testing.T) {
	thread := &fakeThread{}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextDeltaEvent("no start came"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 1 || thread.posts[0] != "no start came" {
		t.Errorf("posts = %v", thread.posts)
	}
}

func TestDispatcherIgnoresStrayTextEnd(t *testing.T) {
	thread := &fakeThread{}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextEndEvent(),
		agent.TextStartEvent(),
		agent.TextDeltaEvent("ok"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 1 || thread.posts[0] != "ok" {
		t.Errorf("posts = %v, want [ok]", thread.posts)
	}
}

func TestDispatcherCapturesSessionID(t *testing.T) {
	thread := &fakeThread{}
	res, err := runDispatcher(t, thread, []agent.Event{
		agent.SessionInitEvent("sess-42"),
		agent.TextStartEvent(),
		agent.TextDeltaEvent("hi"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want sess-42", res.SessionID)
	}
}

func TestDispatcherRetriesTransientPostFailure(t *testing.T) {
	transient := core.WrapNetwork(errors.New("connection reset by peer"))
	thread := &fakeThread{errs: []error{transient, transient}}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("eventually"),
		agent.TextEndEvent(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.posts) != 1 || thread.posts[0] != "eventually" {
		t.Errorf("posts = %v, want [eventually]", thread.posts)
	}
}

func TestDispatcherAbortsOnPermanentPostFailure(t *testing.T) {
	permanent := errors.New("bot was kicked from the chat")
	thread := &fakeThread{errs: []error{permanent}}
	_, err := runDispatcher(t, thread, []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("doomed"),
		agent.TextEndEvent(),
		agent.ToolStartEvent("web_search"),
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Run = %v, want the post error", err)
	}
	if len(thread.posts) != 0 {
		t.Errorf("posts = %v, want none", thread.posts)
	}
}

func TestDispatcherStreamsLiveFragments(t *testing.T) {
	thread := &fakeLiveThread{}
	ch := make(chan agent.Event, 8)
	for _, ev := range []agent.Event{
		agent.TextStartEvent(),
		agent.TextDeltaEvent("Hel"),
		agent.TextDeltaEvent("lo"),
		agent.TextEndEvent(),
		agent.TextStartEvent(),
		agent.TextDeltaEvent("Bye"),
		agent.TextEndEvent(),
	} {
		ch <- ev
	}
	close(ch)

	res, err := NewDispatcher(thread, fastRetry()).Run(context.Background(), ch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(thread.segments) != 2 {
		t.Fatalf("got %d live segments, want 2", len(thread.segments))
	}
	if got := strings.Join(thread.segments[0], ""); got != "Hello" {
		t.Errorf("segment 0 = %q, want Hello", got)
	}
	if got := strings.Join(thread.segments[1], ""); got != "Bye" {
		t.Errorf("segment 1 = %q, want Bye", got)
	}
	if res.FullText != "HelloBye" {
		t.Errorf("FullText = %q, want HelloBye", res.FullText)
	}
}

func TestDispatcherLivePostErrorPropagates(t *testing.T) {
	wantErr := errors.New("client disconnected")
	thread := &fakeLiveThread{liveErr: wantErr}
	ch := make(chan agent.Event, 4)
	ch <- agent.TextStartEvent()
	ch <- agent.TextDeltaEvent("x")
	ch <- agent.TextEndEvent()
	close(ch)

	_, err := NewDispatcher(thread, fastRetry()).Run(context.Background(), ch)
	if !errors.Is(err, wantErr) {
		t.Errorf("Run = %v, want %v", err, wantErr)
	}
}
