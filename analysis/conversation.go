package analysis

import (
	"time"

	"github.com/foliolens/foliolens/llm"
)

// TurnKind discriminates between turn owners.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
)

// Turn is a single role-tagged entry in the conversation: an ordered
// sequence of content blocks owned by the caller, the backend, or the tool
// dispatcher.
type Turn struct {
	Kind      TurnKind          `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Content   []llm.ContentPart `json:"content"`
}

// Conversation is the append-only turn sequence for one analysis request.
// It is owned exclusively by the loop controller, never shared across
// requests, and discarded at request end.
type Conversation struct {
	system string
	turns  []Turn
}

// NewConversation creates a conversation seeded with the system instruction
// and the caller's initial content.
func NewConversation(system string, initial []llm.ContentPart) *Conversation {
	c := &Conversation{system: system}
	c.AppendUser(initial)
	return c
}

// AppendUser appends a caller turn.
func (c *Conversation) AppendUser(content []llm.ContentPart) {
	c.turns = append(c.turns, Turn{Kind: TurnUser, Timestamp: time.Now(), Content: content})
}

// AppendAssistant appends the backend's turn verbatim, including any tool
// invocation request blocks, so the backend can observe what it requested.
func (c *Conversation) AppendAssistant(content []llm.ContentPart) {
	c.turns = append(c.turns, Turn{Kind: TurnAssistant, Timestamp: time.Now(), Content: content})
}

// AppendToolResults appends exactly one tool-results turn containing one
// result block per executed request, correlated by identifier.
func (c *Conversation) AppendToolResults(results []llm.ToolResult) {
	parts := make([]llm.ContentPart, 0, len(results))
	for _, r := range results {
		parts = append(parts, llm.ToolResultPart(r.ToolCallID, r.Content, r.IsError))
	}
	c.turns = append(c.turns, Turn{Kind: TurnToolResults, Timestamp: time.Now(), Content: parts})
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Messages converts the conversation into backend messages, with the
// system instruction first.
func (c *Conversation) Messages() []llm.Message {
	messages := make([]llm.Message, 0, len(c.turns)+1)
	if c.system != "" {
		messages = append(messages, llm.SystemMessage(c.system))
	}
	for _, turn := range c.turns {
		var role llm.Role
		switch turn.Kind {
		case TurnUser:
			role = llm.RoleUser
		case TurnAssistant:
			role = llm.RoleAssistant
		case TurnToolResults:
			role = llm.RoleTool
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return messages
}
