package services

import (
	"context"
	"encoding/json"

	"chatdesk/models"
	"chatdesk/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	PlaceholderTitle        = "New conversation"
	InitialGreeting         = "Hello darling! How can I assist you today? 💖"
	NewConversationGreeting = "How can I help you today, darling? 💖"
	ClearedGreeting         = "Chat history cleared. How can I help you? 💖"

	titleLength = 30
	titleSuffix = "..."
)

// Every function below treats the collection as a value: the input is never
// modified and a fresh collection is returned.

func newConversationID() string {
	return "conv-" + uuid.New().String()
}

func seededConversation(greeting string) models.Conversation {
	return models.Conversation{
		ID:       newConversationID(),
		Title:    PlaceholderTitle,
		Messages: []models.Message{{Role: models.RoleAssistant, Content: greeting}},
		Active:   true,
	}
}

// DefaultCollection is the first-run state: one active conversation holding
// the greeting.
func DefaultCollection() models.Collection {
	return models.Collection{seededConversation(InitialGreeting)}
}

// LoadInitial reads the persisted collection. Any failure (missing slot,
// read error, malformed blob, empty list) falls back to DefaultCollection.
func LoadInitial(ctx context.Context, store storage.Store, key string) models.Collection {
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("reading saved conversations failed, starting fresh")
		}
		return DefaultCollection()
	}

	var c models.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("saved conversations are malformed, starting fresh")
		return DefaultCollection()
	}
	if len(c) == 0 {
		return DefaultCollection()
	}
	return normalizeActive(c)
}

// normalizeActive leaves exactly one active conversation: the last flagged
// one, or the last conversation when none is flagged.
func normalizeActive(c models.Collection) models.Collection {
	if c.ActiveCount() == 1 {
		return c
	}
	keep := len(c) - 1
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Active {
			keep = i
			break
		}
	}
	out := make(models.Collection, len(c))
	for i, conv := range c {
		conv.Active = i == keep
		out[i] = conv
	}
	return out
}

// SaveCollection writes the whole collection under key.
func SaveCollection(ctx context.Context, store storage.Store, key string, c models.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return errors.Wrap(err, "encode conversations")
	}
	if err := store.Put(ctx, key, data); err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return errors.Wrap(err, "save conversations")
	}
	storeWrites.WithLabelValues("ok").Inc()
	return nil
}

func mapConversations(c models.Collection, fn func(models.Conversation) models.Conversation) models.Collection {
	out := make(models.Collection, len(c))
	for i, conv := range c {
		out[i] = fn(conv)
	}
	return out
}

func appendMessage(msgs []models.Message, msg models.Message) []models.Message {
	out := make([]models.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}

func titleFrom(text string) string {
	runes := []rune(text)
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return string(runes) + titleSuffix
}

// AppendUserMessage adds a user message to the active conversation. When the
// conversation reaches exactly two messages the title is taken from text.
func AppendUserMessage(c models.Collection, text string) models.Collection {
	msg := models.Message{Role: models.RoleUser, Content: text}
	return mapConversations(c, func(conv models.Conversation) models.Conversation {
		if !conv.Active {
			return conv
		}
		conv.Messages = appendMessage(conv.Messages, msg)
		if len(conv.Messages) == 2 {
			conv.Title = titleFrom(text)
		}
		return conv
	})
}

func AppendAssistantMessage(c models.Collection, text string) models.Collection {
	msg := models.Message{Role: models.RoleAssistant, Content: text}
	return mapConversations(c, func(conv models.Conversation) models.Conversation {
		if !conv.Active {
			return conv
		}
		conv.Messages = appendMessage(conv.Messages, msg)
		return conv
	})
}

// AppendAssistantMessageTo appends to the conversation with the given id,
// active or not.
func AppendAssistantMessageTo(c models.Collection, id, text string) models.Collection {
	msg := models.Message{Role: models.RoleAssistant, Content: text}
	return mapConversations(c, func(conv models.Conversation) models.Conversation {
		if conv.ID != id {
			return conv
		}
		conv.Messages = appendMessage(conv.Messages, msg)
		return conv
	})
}

// NewConversation deactivates everything and appends a fresh active
// conversation.
func NewConversation(c models.Collection) models.Collection {
	out := mapConversations(c, func(conv models.Conversation) models.Conversation {
		conv.Active = false
		return conv
	})
	return append(out, seededConversation(NewConversationGreeting))
}

// SwitchConversation activates the conversation with id. An unknown id
// leaves no conversation active.
func SwitchConversation(c models.Collection, id string) models.Collection {
	return mapConversations(c, func(conv models.Conversation) models.Conversation {
		conv.Active = conv.ID == id
		return conv
	})
}

// ClearActive replaces the active conversation's history with the cleared
// greeting.
func ClearActive(c models.Collection) models.Collection {
	return mapConversations(c, func(conv models.Conversation) models.Conversation {
		if !conv.Active {
			return conv
		}
		conv.Messages = []models.Message{{Role: models.RoleAssistant, Content: ClearedGreeting}}
		return conv
	})
}

func Active(c models.Collection) (models.Conversation, bool) {
	for _, conv := range c {
		if conv.Active {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// ActiveMessages is empty when no conversation is active.
func ActiveMessages(c models.Collection) []models.Message {
	conv, ok := Active(c)
	if !ok {
		return []models.Message{}
	}
	return conv.Messages
}

func Find(c models.Collection, id string) (models.Conversation, bool) {
	for _, conv := range c {
		if conv.ID == id {
			return conv, true
		}
	}
	return models.Conversation{}, false
}
