// Package store defines the Conversation/Message/Model/Prompt/UserProfile
// contracts (§3) that the Turn Orchestrator persists against. Grounded on
// the teacher's internal/persistence package: a narrow interface plus
// sentinel errors, with memory and Postgres implementations in the
// memory/ and postgres/ subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a Conversation lookup misses (teacher:
// persistence.ErrNotFound). Model and Prompt lookups report a miss through
// their bool result instead.
var ErrNotFound = errors.New("store: not found")

// Message is §3's Message entity: append-only within a turn, never
// mutated after commit (I2).
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" | "assistant" | "tool"
	Content        string
	SearchPassage  string          // optional search-passage attachment
	ToolCallName   string          // optional tool-call metadata
	ToolCallArgs   json.RawMessage // optional tool-call metadata
	Metrics        *ResponseMetrics
	CreatedAt      time.Time
}

// ResponseMetrics mirrors llm.ResponseMetrics without importing internal/llm,
// so the store package has no dependency on the provider layer; the
// orchestrator adapts llm.ResponseMetrics into this shape at persistence
// time.
type ResponseMetrics struct {
	ElapsedSeconds float64
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	Estimated      []string
}

// Conversation is §3's Conversation entity: holds Messages, references one
// Model and one Prompt by id/name.
type Conversation struct {
	ID          string
	DisplayName string
	ModelID     string
	PromptID    string
	Messages    []Message
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Archived    bool
}

// Model is §3's Model entity: registered administratively, read-only to
// the core.
type Model struct {
	Name             string
	Provider         string
	Temperature      float64
	TopP             float64
	MaxInputTokens   int
	MaxOutputTokens  int
	SupportsText     bool
	SupportsImageIn  bool
	SupportsImageOut bool
	SupportsTools    bool
	SupportsThinking bool
	SupportsGrounding bool
	PriceInputPerMTok  float64
	PriceOutputPerMTok float64
}

// Prompt is §3's Prompt entity: read-only to the core.
type Prompt struct {
	Name    string
	Content string
}

// ProfilePrivacy names the per-field privacy flags on UserProfile (§4.5
// "honoring its privacy flags").
type ProfilePrivacy struct {
	HideName       bool
	HideLocation   bool
	HideCoordinates bool
	HideStation    bool
	HideW3W        bool
}

// UserProfile is §3's UserProfile entity: a singleton per user, read at
// turn start, written only by profile UI (excluded from this module's
// scope per spec.md §1 Non-goals).
type UserProfile struct {
	DisplayName     string
	HomeAddress     string
	Latitude        float64
	Longitude       float64
	What3Words      string
	Timezone        string
	StationID       string
	UnitsImperial   bool
	PersonalityHint string
	Privacy         ProfilePrivacy
}

// ConversationStore is the mutable half of the data model: Conversations
// and their Messages. AppendTurn implements the atomicity requirement of
// §4.6: "persistence of the pair (user Message + assistant Message) must
// be a single update to the Conversation document."
type ConversationStore interface {
	Init(ctx context.Context) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	CreateConversation(ctx context.Context, displayName, modelID, promptID string) (Conversation, error)
	// AppendTurn atomically appends userMsg and assistantMsg (in that
	// order) and advances UpdatedAt. A failure leaves the Conversation
	// exactly as it was before the call (§4.6 Atomicity: "no assistant
	// Message is retained" on failure).
	AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg Message) (Conversation, error)
}

// ModelStore is read-only to the core (§3 "Registered administratively").
type ModelStore interface {
	Get(ctx context.Context, name string) (Model, bool, error)
	List(ctx context.Context) ([]Model, error)
}

// PromptStore is read-only to the core (§3 "Read-only to the core").
type PromptStore interface {
	Get(ctx context.Context, name string) (Prompt, bool, error)
}

// ProfileStore is read-only to the core; profile editing is excluded by
// spec.md §1 Non-goals.
type ProfileStore interface {
	Get(ctx context.Context) (UserProfile, error)
}
