package models

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is immutable once appended to a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Lines splits the content for display. Every line, including the last one,
// is rendered with its own terminator.
func (m Message) Lines() []string {
	return strings.Split(m.Content, "\n")
}

type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Active   bool      `json:"active"`
}

// Collection is the full ordered list of conversations. It is persisted as a
// single JSON array.
type Collection []Conversation

// ActiveCount returns how many conversations are flagged active.
func (c Collection) ActiveCount() int {
	n := 0
	for _, conv := range c {
		if conv.Active {
			n++
		}
	}
	return n
}
