package agent

// EventType tags the variants of the agent event stream.
type EventType string

const (
	EventTextStart   EventType = "text_start"
	EventTextDelta   EventType = "text_delta"
	EventTextEnd     EventType = "text_end"
	EventToolStart   EventType = "tool_start"
	EventToolResult  EventType = "tool_result"
	EventSessionInit EventType = "session_init"
)

// Event is one element of the incremental stream emitted by the agent
// runtime: prose segment lifecycle, tool invocation lifecycle, and the
// durable session identifier.
type Event struct {
	Type      EventType
	Text      string // EventTextDelta
	ToolName  string // EventToolStart, EventToolResult
	Output    string // EventToolResult
	SessionID string // EventSessionInit
}

func TextStartEvent() Event            { return Event{Type: EventTextStart} }
func TextDeltaEvent(text string) Event { return Event{Type: EventTextDelta, Text: text} }
func TextEndEvent() Event              { return Event{Type: EventTextEnd} }
func ToolStartEvent(name string) Event { return Event{Type: EventToolStart, ToolName: name} }
func SessionInitEvent(id string) Event { return Event{Type: EventSessionInit, SessionID: id} }

func ToolResultEvent(name, output string) Event {
	return Event{Type: EventToolResult, ToolName: name, Output: output}
}
