package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/wdchenxyz/agent-rina/internal/core"
)

// postedMediaPreamble introduces the synthetic user turn that lets the model
// see media it posted itself in an earlier turn.
const postedMediaPreamble = "For reference, you posted this media earlier in the conversation:"

// Assembler reconstructs a role-alternating conversation history from a
// thread's stored message log.
type Assembler struct {
	MaxAttachments int
	MaxImageBytes  int
	MaxFileBytes   int
}

func NewAssembler(maxAttachments, maxImageBytes, maxFileBytes int) *Assembler {
	return &Assembler{
		MaxAttachments: maxAttachments,
		MaxImageBytes:  maxImageBytes,
		MaxFileBytes:   maxFileBytes,
	}
}

// Assemble converts stored messages (oldest first) into merged turns. The
// triggering message is excluded; the caller appends it separately as the
// final user turn. Oversized or unreadable attachments are skipped and
// reported in the returned warnings, never to the model.
func (a *Assembler) Assemble(ctx context.Context, msgs []ThreadMessage, triggerID string) ([]core.Turn, []string) {
	var turns []core.Turn
	var warnings []string
	used := 0

	for _, m := range msgs {
		if m.ID == triggerID {
			continue
		}

		if m.FromMe {
			if text := strings.TrimSpace(m.Text); text != "" {
				turns = append(turns, core.TextTurn(core.RoleAssistant, text))
			}
			// Media the bot posted itself becomes a synthetic user turn so
			// the model can see it; the merge pass below folds it into an
			// adjacent user turn like any other.
			if len(m.Attachments) > 0 {
				parts := []core.Part{{Kind: core.PartText, Text: postedMediaPreamble}}
				parts = a.appendAttachments(ctx, parts, m.Attachments, &used, &warnings)
				if len(parts) > 1 {
					turns = append(turns, core.Turn{Role: core.RoleUser, Parts: parts})
				}
			}
			continue
		}

		var parts []core.Part
		if m.Text != "" {
			parts = append(parts, core.Part{Kind: core.PartText, Text: m.Text})
		}
		parts = a.appendAttachments(ctx, parts, m.Attachments, &used, &warnings)
		if len(parts) > 0 {
			turns = append(turns, core.Turn{Role: core.RoleUser, Parts: parts})
		}
	}

	return core.MergeTurns(turns), warnings
}

func (a *Assembler) appendAttachments(ctx context.Context, parts []core.Part, atts []Attachment, used *int, warnings *[]string) []core.Part {
	for _, att := range atts {
		if *used >= a.MaxAttachments {
			*warnings = append(*warnings, fmt.Sprintf("attachment %s skipped: attachment limit reached", attName(att)))
			continue
		}
		part, err := a.readAttachment(ctx, att)
		if err != nil {
			log.Printf("[bridge] skipping attachment %s: %v", attName(att), err)
			*warnings = append(*warnings, fmt.Sprintf("attachment %s skipped: %v", attName(att), err))
			continue
		}
		parts = append(parts, part)
		*used++
	}
	return parts
}

func (a *Assembler) readAttachment(ctx context.Context, att Attachment) (core.Part, error) {
	data := att.Data
	if data == nil && att.Fetch != nil {
		var err error
		data, err = att.Fetch(ctx)
		if err != nil {
			return core.Part{}, core.NewAttachmentError("fetch failed", err)
		}
	}
	if data == nil {
		return core.Part{}, core.NewAttachmentError("no data available", nil)
	}

	switch att.Kind {
	case "image":
		if len(data) > a.MaxImageBytes {
			return core.Part{}, core.NewAttachmentError(fmt.Sprintf("image exceeds %d bytes", a.MaxImageBytes), nil)
		}
		return core.Part{Kind: core.PartImage, MimeType: att.MimeType, Data: data}, nil
	default:
		if len(data) > a.MaxFileBytes {
			return core.Part{}, core.NewAttachmentError(fmt.Sprintf("file exceeds %d bytes", a.MaxFileBytes), nil)
		}
		return core.Part{Kind: core.PartFile, Name: att.Name, MimeType: att.MimeType, Data: data}, nil
	}
}

func attName(att Attachment) string {
	if att.Name != "" {
		return att.Name
	}
	if att.URL != "" {
		return att.URL
	}
	return att.Kind
}
