// Package memory implements an in-process store.ConversationStore for tests
// and local dev, grounded on the teacher's chat_store_memory.go.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"turncore/internal/store"
)

// ConversationStore is a mutex-guarded, process-local conversation store.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]store.Conversation
}

// NewConversationStore returns an empty ConversationStore.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{conversations: make(map[string]store.Conversation)}
}

func (s *ConversationStore) Init(ctx context.Context) error { return nil }

func (s *ConversationStore) CreateConversation(ctx context.Context, displayName, modelID, promptID string) (store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := store.Conversation{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		ModelID:     modelID,
		PromptID:    promptID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}
	return cloneConversation(conv), nil
}

// AppendTurn implements the §4.6 atomicity requirement: the in-memory map
// entry is replaced wholesale under a single write lock, so a reader never
// observes a half-appended turn (I1: Messages stay non-decreasing in
// timestamp).
func (s *ConversationStore) AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg store.Message) (store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}

	now := time.Now().UTC()
	userMsg.ConversationID = conversationID
	assistantMsg.ConversationID = conversationID
	if userMsg.ID == "" {
		userMsg.ID = uuid.NewString()
	}
	if assistantMsg.ID == "" {
		assistantMsg.ID = uuid.NewString()
	}
	if userMsg.CreatedAt.IsZero() {
		userMsg.CreatedAt = now
	}
	if assistantMsg.CreatedAt.IsZero() || !assistantMsg.CreatedAt.After(userMsg.CreatedAt) {
		assistantMsg.CreatedAt = userMsg.CreatedAt.Add(time.Millisecond)
	}

	conv.Messages = append(append([]store.Message(nil), conv.Messages...), userMsg, assistantMsg)
	conv.UpdatedAt = now
	s.conversations[conversationID] = conv
	return cloneConversation(conv), nil
}

func cloneConversation(conv store.Conversation) store.Conversation {
	out := conv
	out.Messages = append([]store.Message(nil), conv.Messages...)
	return out
}

// ModelStore is an in-process, pre-seeded store.ModelStore.
type ModelStore struct {
	mu     sync.RWMutex
	models map[string]store.Model
}

// NewModelStore seeds a ModelStore from models, keyed by Model.Name.
func NewModelStore(models ...store.Model) *ModelStore {
	m := &ModelStore{models: make(map[string]store.Model, len(models))}
	for _, model := range models {
		m.models[model.Name] = model
	}
	return m
}

func (m *ModelStore) Get(ctx context.Context, name string) (store.Model, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[name]
	return model, ok, nil
}

func (m *ModelStore) List(ctx context.Context) ([]store.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Model, 0, len(m.models))
	for _, model := range m.models {
		out = append(out, model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PromptStore is an in-process, pre-seeded store.PromptStore.
type PromptStore struct {
	mu      sync.RWMutex
	prompts map[string]store.Prompt
}

// NewPromptStore seeds a PromptStore from prompts, keyed by Prompt.Name.
func NewPromptStore(prompts ...store.Prompt) *PromptStore {
	p := &PromptStore{prompts: make(map[string]store.Prompt, len(prompts))}
	for _, prompt := range prompts {
		p.prompts[prompt.Name] = prompt
	}
	return p
}

func (p *PromptStore) Get(ctx context.Context, name string) (store.Prompt, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prompt, ok := p.prompts[name]
	return prompt, ok, nil
}

// ProfileStore is a fixed, in-process store.ProfileStore holding a single
// UserProfile (profile editing is out of scope per spec.md §1 Non-goals).
type ProfileStore struct {
	profile store.UserProfile
}

// NewProfileStore returns a ProfileStore that always serves profile.
func NewProfileStore(profile store.UserProfile) *ProfileStore {
	return &ProfileStore{profile: profile}
}

func (p *ProfileStore) Get(ctx context.Context) (store.UserProfile, error) {
	return p.profile, nil
}
