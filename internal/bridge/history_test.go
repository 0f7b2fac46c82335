package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wdchenxyz/agent-rina/internal/core"
)

func testAssembler() *Assembler {
	return NewAssembler(6, 4096*1024, 1024*1024)
}

func TestAssembleBasicConversation(t *testing.T) {
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "hi"},
		{ID: "2", FromMe: true, Text: "hello"},
		{ID: "3", FromMe: false, Text: "what's new?"},
	}

	turns, warnings := testAssembler().Assemble(context.Background(), msgs, "3")
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != core.RoleUser || turns[0].Text() != "hi" {
		t.Errorf("turn 0 = %s %q", turns[0].Role, turns[0].Text())
	}
	if turns[1].Role != core.RoleAssistant || turns[1].Text() != "hello" {
		t.Errorf("turn 1 = %s %q", turns[1].Role, turns[1].Text())
	}
}

func TestAssembleExcludesTriggerMessage(t *testing.T) {
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "earlier"},
		{ID: "trigger", FromMe: false, Text: "the trigger"},
	}

	turns, _ := testAssembler().Assemble(context.Background(), msgs, "trigger")
	for _, turn := range turns {
		if strings.Contains(turn.Text(), "the trigger") {
			t.Error("trigger message leaked into assembled history")
		}
	}
}

func TestAssembleAlwaysAlternates(t *testing.T) {
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "one"},
		{ID: "2", FromMe: false, Text: "two"},
		{ID: "3", FromMe: true, Text: "reply a"},
		{ID: "4", FromMe: true, Text: "reply b"},
		{ID: "5", FromMe: false, Text: "three"},
		{ID: "6", FromMe: false, Text: "four"},
	}

	turns, _ := testAssembler().Assemble(context.Background(), msgs, "")
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == turns[i-1].Role {
			t.Fatalf("turns %d and %d share role %s", i-1, i, turns[i].Role)
		}
	}
	if len(turns) != 3 {
		t.Errorf("got %d turns, want 3", len(turns))
	}
	if got := turns[1].Text(); got != "reply a\n\nreply b" {
		t.Errorf("merged assistant turn = %q", got)
	}
}

func TestAssembleSyntheticTurnForBotMedia(t *testing.T) {
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "draw me a cat"},
		{ID: "2", FromMe: true, Text: "here you go", Attachments: []Attachment{
			{Kind: "image", MimeType: "image/png", Data: []byte{1, 2, 3}},
		}},
		{ID: "3", FromMe: false, Text: "make it bigger"},
	}

	turns, warnings := testAssembler().Assemble(context.Background(), msgs, "")
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	// user, assistant, then the synthetic media turn merged with "make it
	// bigger" into one user turn.
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	last := turns[2]
	if last.Role != core.RoleUser {
		t.Fatalf("last role = %s, want user", last.Role)
	}
	if !strings.Contains(last.Text(), postedMediaPreamble) {
		t.Error("synthetic media preamble missing")
	}
	var hasImage bool
	for _, p := range last.Parts {
		if p.Kind == core.PartImage {
			hasImage = true
		}
	}
	if !hasImage {
		t.Error("bot-posted image missing from synthetic turn")
	}
}

func TestAssembleSkipsOversizedAttachment(t *testing.T) {
	a := NewAssembler(6, 10, 10)
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "look at this", Attachments: []Attachment{
			{Kind: "image", Name: "big.png", MimeType: "image/png", Data: make([]byte, 100)},
		}},
	}

	turns, warnings := a.Assemble(context.Background(), msgs, "")
	if len(warnings) != 1 || !strings.Contains(warnings[0], "big.png") {
		t.Errorf("warnings = %v, want one naming big.png", warnings)
	}
	if len(turns) != 1 || len(turns[0].Parts) != 1 {
		t.Fatalf("turns = %+v, want text-only turn", turns)
	}
	if turns[0].Parts[0].Kind != core.PartText {
		t.Error("oversized attachment was not dropped")
	}
}

func TestAssembleEnforcesAttachmentCount(t *testing.T) {
	a := NewAssembler(2, 4096, 4096)
	atts := []Attachment{
		{Kind: "image", Name: "a.png", Data: []byte{1}},
		{Kind: "image", Name: "b.png", Data: []byte{2}},
		{Kind: "image", Name: "c.png", Data: []byte{3}},
	}
	msgs := []ThreadMessage{{ID: "1", FromMe: false, Text: "three images", Attachments: atts}}

	turns, warnings := a.Assemble(context.Background(), msgs, "")
	if len(warnings) != 1 || !strings.Contains(warnings[0], "c.png") {
		t.Errorf("warnings = %v, want one naming c.png", warnings)
	}
	if got := len(turns[0].Parts); got != 3 { // text + two images
		t.Errorf("got %d parts, want 3", got)
	}
}

func TestAssembleFetchesLazyAttachment(t *testing.T) {
	fetched := false
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "see file", Attachments: []Attachment{
			{Kind: "file", Name: "notes.txt", MimeType: "text/plain", Fetch: func(ctx context.Context) ([]byte, error) {
				fetched = true
				return []byte("contents"), nil
			}},
		}},
	}

	turns, warnings := testAssembler().Assemble(context.Background(), msgs, "")
	if !fetched {
		t.Error("lazy fetch was never invoked")
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(turns[0].Parts) != 2 || turns[0].Parts[1].Kind != core.PartFile {
		t.Errorf("parts = %+v, want text + file", turns[0].Parts)
	}
}

func TestAssembleSkipsFailedFetch(t *testing.T) {
	msgs := []ThreadMessage{
		{ID: "1", FromMe: false, Text: "see file", Attachments: []Attachment{
			{Kind: "file", Name: "gone.txt", Fetch: func(ctx context.Context) ([]byte, error) {
				return nil, errors.New("file expired")
			}},
		}},
	}

	turns, warnings := testAssembler().Assemble(context.Background(), msgs, "")
	if len(warnings) != 1 || !strings.Contains(warnings[0], "gone.txt") {
		t.Errorf("warnings = %v, want one naming gone.txt", warnings)
	}
	if len(turns[0].Parts) != 1 {
		t.Errorf("failed attachment was not skipped: %+v", turns[0].Parts)
	}
}

func TestAssembleEmptyHistory(t *testing.T) {
	turns, warnings := testAssembler().Assemble(context.Background(), nil, "trigger")
	if len(turns) != 0 || len(warnings) != 0 {
		t.Errorf("got %v / %v, want empty", turns, warnings)
	}
}
