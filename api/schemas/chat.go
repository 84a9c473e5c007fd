package schemas

import (
	"time"
)

// -- Chat Schemas --

// MessageRole identifies the author of a message within a conversation.
// The values are lowercase to match the wire and persistence formats.
type MessageRole string

// Constants defining the mutually exclusive message roles.
const (
	RoleUser      MessageRole = "user"      // A message typed by the user.
	RoleAssistant MessageRole = "assistant" // A message produced by the agent.
	RoleSystem    MessageRole = "system"    // A message injected by the client itself.
)

// AgentStatus is the single authoritative lifecycle value describing what the
// remote agent is currently doing for the in-flight task. Transitions between
// these values are owned exclusively by the session state machine.
type AgentStatus string

// Constants for the agent lifecycle. Done and Error are terminal for the
// current task; the machine returns to Idle on the next user action.
const (
	StatusIdle      AgentStatus = "idle"      // No task in flight.
	StatusThinking  AgentStatus = "thinking"  // Task submitted, no progress signal yet.
	StatusExecuting AgentStatus = "executing" // The agent is performing browser actions.
	StatusDone      AgentStatus = "done"      // The task finished with a result.
	StatusError     AgentStatus = "error"     // The task finished with an agent-reported error.
)

// AgentAction is a human-readable narration of one unit of agent work. Zero or
// more actions are snapshotted into a Message when a task finalizes.
type AgentAction struct {
	Title       string      `json:"title"`                 // Short label for the unit of work.
	Description string      `json:"description,omitempty"` // Optional progress detail.
	Status      AgentStatus `json:"status"`                // The lifecycle value the action was created under.
}

// Screenshot is one step's visual progress artifact. Step indices are assigned
// by the agent, start at 1 per task, and are strictly increasing within a task.
type Screenshot struct {
	URL         string `json:"url,omitempty"`         // Remote image reference.
	Base64      string `json:"base64,omitempty"`      // Inline encoded payload, preferred for display when present.
	Step        int    `json:"step"`                  // Monotonic step index within the task.
	Description string `json:"description,omitempty"` // Optional textual caption.
}

// Message is a single immutable entry in a conversation log. Once appended it
// is never edited; the agentActions/screenshots fields are a snapshot taken at
// finalization time.
type Message struct {
	ID        string      `json:"id"`        // Unique identifier for the message.
	Role      MessageRole `json:"role"`      // Author of the message.
	Content   string      `json:"content"`   // Text body.
	Timestamp time.Time   `json:"timestamp"` // Creation time.

	AgentActions []AgentAction `json:"agentActions,omitempty"` // Narrated work units snapshotted at finalization.
	Screenshots  []Screenshot  `json:"screenshots,omitempty"`  // Step artifacts snapshotted at finalization.
}

// TitleLimit is the maximum rune length of a derived conversation title before
// truncation with an ellipsis.
const TitleLimit = 30

// DefaultTitle is the placeholder title a conversation carries until the first
// user message arrives.
const DefaultTitle = "New Chat"

// Conversation is a titled, ordered, persisted log of messages tied to one
// analysis session with the agent. Messages are append-only; insertion order
// is chronological order.
type Conversation struct {
	ID        string    `json:"id"`        // Unique identifier for the conversation.
	Title     string    `json:"title"`     // Derived from the first user message.
	Messages  []Message `json:"messages"`  // Append-only message log.
	CreatedAt time.Time `json:"createdAt"` // Creation time.
	UpdatedAt time.Time `json:"updatedAt"` // Time of the last appended message.
}

// DeriveTitle produces a conversation title from the first user message,
// truncated to TitleLimit runes with a trailing ellipsis when longer.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) > TitleLimit {
		return string(runes[:TitleLimit]) + "..."
	}
	return content
}
