// File: internal/conversation/store.go
package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/store"
)

// DefaultKey is the blob key the conversation collection is persisted under.
const DefaultKey = "cortex-chats"

// ErrNotFound signals that no conversation exists with the requested id.
var ErrNotFound = errors.New("conversation: not found")

// Store maintains the ordered collection of conversations and their message
// histories. Every mutating operation writes the full collection through to
// the backing blob store, so a crash loses at most the in-memory delta since
// the last append.
type Store struct {
	logger *zap.Logger
	blob   store.Blob
	key    string

	mu            sync.RWMutex
	conversations []schemas.Conversation // Newest first.
	currentID     string
}

// NewStore restores the collection from the backing store. Missing or
// unparsable state is treated as empty: the store starts with exactly one
// freshly created conversation and never fails construction over bad data.
func NewStore(blob store.Blob, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	s := &Store{
		logger: logger.Named("conversation"),
		blob:   blob,
		key:    key,
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	data, err := s.blob.Get(s.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to read persisted conversations, starting fresh.", zap.Error(err))
		}
		s.Create()
		return
	}

	var restored []schemas.Conversation
	if err := json.Unmarshal(data, &restored); err != nil || len(restored) == 0 {
		if err != nil {
			s.logger.Warn("Persisted conversations are unparsable, starting fresh.", zap.Error(err))
		}
		s.Create()
		return
	}

	s.mu.Lock()
	s.conversations = restored
	s.currentID = restored[0].ID
	s.mu.Unlock()
	s.logger.Info("Conversations restored.", zap.Int("count", len(restored)))
}

// Create generates a new empty conversation, prepends it to the collection,
// and makes it current.
func (s *Store) Create() schemas.Conversation {
	now := time.Now().UTC()
	conv := schemas.Conversation{
		ID:        uuid.New().String(),
		Title:     schemas.DefaultTitle,
		Messages:  []schemas.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations = append([]schemas.Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	s.mu.Unlock()

	s.persist()
	return conv
}

// Select makes an existing conversation current. Returns ErrNotFound without
// changing the selection when the id is absent.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.currentID = id
			return nil
		}
	}
	return ErrNotFound
}

// Remove deletes a conversation. When the current one is removed, the next
// conversation in collection order becomes current; if none remain, a fresh
// one is created. Returns whether the current selection changed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, ErrNotFound
	}

	wasCurrent := s.currentID == id
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)

	if wasCurrent && len(s.conversations) > 0 {
		s.currentID = s.conversations[0].ID
	}
	needFresh := wasCurrent && len(s.conversations) == 0
	s.mu.Unlock()

	if needFresh {
		// Create persists on its own.
		s.Create()
		return true, nil
	}

	s.persist()
	return wasCurrent, nil
}

// Append adds a message to the end of a conversation's log and bumps its
// updatedAt. The first user message also fixes the conversation title.
func (s *Store) Append(conversationID string, msg schemas.Message) error {
	s.mu.Lock()
	idx := -1
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}

	conv := &s.conversations[idx]
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now().UTC()
	if msg.Role == schemas.RoleUser && conv.Title == schemas.DefaultTitle {
		conv.Title = schemas.DeriveTitle(msg.Content)
	}
	s.mu.Unlock()

	s.persist()
	return nil
}

// Current returns a copy of the current conversation. The second return is
// false only before the first Create, which NewStore rules out.
func (s *Store) Current() (schemas.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.conversations {
		if s.conversations[i].ID == s.currentID {
			return copyConversation(s.conversations[i]), true
		}
	}
	return schemas.Conversation{}, false
}

// CurrentID returns the id of the current conversation.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// List returns a copy of the ordered collection.
func (s *Store) List() []schemas.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Conversation, 0, len(s.conversations))
	for i := range s.conversations {
		out = append(out, copyConversation(s.conversations[i]))
	}
	return out
}

// persist writes the whole collection through to the backing store. A write
// failure is logged and otherwise tolerated; the in-memory state remains the
// source of truth for the session.
func (s *Store) persist() {
	s.mu.RLock()
	data, err := json.Marshal(s.conversations)
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("Failed to encode conversations.", zap.Error(err))
		return
	}
	if err := s.blob.Set(s.key, data); err != nil {
		s.logger.Error("Failed to persist conversations.", zap.Error(err))
	}
}

// copyConversation deep-copies the message slice so callers cannot mutate the
// store's log through a returned value.
func copyConversation(c schemas.Conversation) schemas.Conversation {
	cp := c
	cp.Messages = make([]schemas.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return cp
}
