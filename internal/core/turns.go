package core

import "strings"

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind distinguishes the content parts of a turn.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// Part is one content element of a conversation turn.
type Part struct {
	Kind     PartKind
	Text     string // PartText
	MimeType string // PartImage, PartFile
	Name     string // PartFile
	Data     []byte // PartImage, PartFile
}

// Turn is one role-tagged unit of model-facing conversation content.
type Turn struct {
	Role  Role
	Parts []Part
}

// TextTurn creates a turn with a single text part.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Kind: PartText, Text: text}}}
}

// Text joins the text parts of a turn with blank-line separators.
func (t Turn) Text() string {
	var parts []string
	for _, p := range t.Parts {
		if p.Kind == PartText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// MergeTurns collapses consecutive turns of the same role so the result
// strictly alternates user/assistant, a hard requirement of the model API.
// Consecutive user turns concatenate their parts in order; consecutive
// assistant turns concatenate text with a blank-line separator.
func MergeTurns(turns []Turn) []Turn {
	if len(turns) <= 1 {
		return turns
	}

	var merged []Turn
	for _, t := range turns {
		if len(merged) == 0 || merged[len(merged)-1].Role != t.Role {
			merged = append(merged, t)
			continue
		}
		last := &merged[len(merged)-1]
		if t.Role == RoleAssistant {
			joined := last.Text()
			if next := t.Text(); next != "" {
				if joined != "" {
					joined += "\n\n" + next
				} else {
					joined = next
				}
			}
			last.Parts = []Part{{Kind: PartText, Text: joined}}
		} else {
			last.Parts = append(last.Parts, t.Parts...)
		}
	}
	return merged
}
