package services

import (
	"context"
	"strings"
	"sync"

	"chatdesk/config"
	"chatdesk/models"
	"chatdesk/storage"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrSendInFlight         = errors.New("a message is already being sent in this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnknownModel         = errors.New("unknown model")
)

type ChatOptions struct {
	StorageKey string
	Model      string
	Models     []models.ModelOption
}

// ChatService drives the user-facing actions. It owns the collection, the
// display toggles, the selected model and the set of conversations with a
// send in flight.
type ChatService struct {
	mu        sync.Mutex
	store     storage.Store
	key       string
	completer Completer

	conversations models.Collection
	inflight      map[string]struct{}
	model         string
	models        []models.ModelOption
	darkMode      bool
	sidebarOpen   bool
}

type MessageView struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
	Lines   []string    `json:"lines"`
}

// Snapshot is everything a presentation layer needs to render.
type Snapshot struct {
	Conversations models.Collection    `json:"conversations"`
	ActiveID      string               `json:"activeId"`
	Messages      []MessageView        `json:"messages"`
	Loading       bool                 `json:"loading"`
	Model         string               `json:"model"`
	ModelName     string               `json:"modelName"`
	Models        []models.ModelOption `json:"models"`
	DarkMode      bool                 `json:"darkMode"`
	SidebarOpen   bool                 `json:"sidebarOpen"`
}

// NewChatService loads the saved conversations (or the default ones) and
// writes them back, so the store always holds the state being shown.
func NewChatService(ctx context.Context, store storage.Store, completer Completer, opts ChatOptions) *ChatService {
	if opts.StorageKey == "" {
		opts.StorageKey = config.DefaultStorageKey
	}
	if len(opts.Models) == 0 {
		opts.Models = models.DefaultModelOptions()
	}
	if _, ok := models.FindModelOption(opts.Models, opts.Model); !ok {
		opts.Model = opts.Models[0].ID
	}

	s := &ChatService{
		store:       store,
		key:         opts.StorageKey,
		completer:   completer,
		inflight:    map[string]struct{}{},
		model:       opts.Model,
		models:      opts.Models,
		sidebarOpen: true,
	}
	s.conversations = LoadInitial(ctx, store, s.key)
	s.persist(ctx)
	return s
}

// NewChatServiceFromConfig wires the completer selected in cfg.
func NewChatServiceFromConfig(ctx context.Context, cfg *config.Config, store storage.Store) *ChatService {
	return NewChatService(ctx, store, NewCompleter(cfg), ChatOptions{
		StorageKey: cfg.Store.Key,
		Model:      cfg.Model,
		Models:     cfg.Models,
	})
}

// commit swaps in the new collection and saves it. Callers hold s.mu.
func (s *ChatService) commit(ctx context.Context, next models.Collection) {
	s.conversations = next
	s.persist(ctx)
}

func (s *ChatService) persist(ctx context.Context) {
	if err := SaveCollection(ctx, s.store, s.key, s.conversations); err != nil {
		log.Error().Err(err).Str("key", s.key).Msg("saving conversations failed")
	}
}

// Send appends text as a user message to the active conversation, asks the
// completer for a reply and appends the reply (or the error text) to the same
// conversation. Completion failures are not returned: they end up in the
// transcript as "Error: ..." messages.
//
// The request is not cancelled when ctx is: once started, a send always
// resolves.
func (s *ChatService) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		sendsRejected.WithLabelValues("empty").Inc()
		return ErrEmptyMessage
	}
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	active, ok := Active(s.conversations)
	if !ok {
		s.mu.Unlock()
		sendsRejected.WithLabelValues("no_active").Inc()
		return ErrNoActiveConversation
	}
	if _, busy := s.inflight[active.ID]; busy {
		s.mu.Unlock()
		sendsRejected.WithLabelValues("in_flight").Inc()
		return ErrSendInFlight
	}
	s.inflight[active.ID] = struct{}{}
	history := active.Messages
	model := s.model
	s.commit(ctx, AppendUserMessage(s.conversations, text))
	s.mu.Unlock()

	log.Debug().Str("conversation", active.ID).Str("model", model).Int("history", len(history)).Msg("sending message")

	newMessage := models.Message{Role: models.RoleUser, Content: text}
	reply, err := s.completer.SendChat(ctx, history, newMessage, model)
	if err != nil {
		log.Warn().Err(err).Str("conversation", active.ID).Msg("completion failed")
		reply = "Error: " + errorMessage(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, active.ID)
	s.commit(ctx, AppendAssistantMessageTo(s.conversations, active.ID, reply))
	return nil
}

func errorMessage(err error) string {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func (s *ChatService) NewConversation(ctx context.Context) models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(ctx, NewConversation(s.conversations))
	return s.conversations
}

// SwitchConversation refuses ids that do not exist rather than leaving the
// collection without an active conversation.
func (s *ChatService) SwitchConversation(ctx context.Context, id string) (models.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := Find(s.conversations, id); !ok {
		return s.conversations, errors.Wrapf(ErrConversationNotFound, "id %q", id)
	}
	s.commit(ctx, SwitchConversation(s.conversations, id))
	return s.conversations, nil
}

func (s *ChatService) ClearChat(ctx context.Context) models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(ctx, ClearActive(s.conversations))
	return s.conversations
}

func (s *ChatService) SelectModel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := models.FindModelOption(s.models, id); !ok {
		return errors.Wrapf(ErrUnknownModel, "model %q", id)
	}
	s.model = id
	return nil
}

func (s *ChatService) ToggleDarkMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.darkMode = !s.darkMode
	return s.darkMode
}

func (s *ChatService) ToggleSidebar() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebarOpen = !s.sidebarOpen
	return s.sidebarOpen
}

// Loading reports whether any send is waiting on the completer.
func (s *ChatService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

func (s *ChatService) Conversations() models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations
}

func (s *ChatService) Models() []models.ModelOption {
	return s.models
}

func (s *ChatService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Conversations: s.conversations,
		Messages:      []MessageView{},
		Loading:       len(s.inflight) > 0,
		Model:         s.model,
		Models:        s.models,
		DarkMode:      s.darkMode,
		SidebarOpen:   s.sidebarOpen,
	}
	if m, ok := models.FindModelOption(s.models, s.model); ok {
		snap.ModelName = m.Name
	}
	if active, ok := Active(s.conversations); ok {
		snap.ActiveID = active.ID
	}
	for _, m := range ActiveMessages(s.conversations) {
		snap.Messages = append(snap.Messages, MessageView{Role: m.Role, Content: m.Content, Lines: m.Lines()})
	}
	return snap
}
