// File: internal/conversation/store_test.go
package conversation_test

import (
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/conversation"
	"github.com/zerofrost11/cortex-client/internal/store"
)

func newStore(t *testing.T) (*conversation.Store, *store.MemStore) {
	t.Helper()
	blob := store.NewMemStore()
	return conversation.NewStore(blob, conversation.DefaultKey, zaptest.NewLogger(t)), blob
}

func userMessage(content string) schemas.Message {
	return schemas.Message{
		ID:        "m-" + content,
		Role:      schemas.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func TestNewStore_EmptyBackingStoreCreatesOneConversation(t *testing.T) {
	s, _ := newStore(t)

	convs := s.List()
	require.Len(t, convs, 1)
	assert.Equal(t, schemas.DefaultTitle, convs[0].Title)
	assert.Equal(t, convs[0].ID, s.CurrentID())
}

func TestNewStore_CorruptStateFallsBackToFresh(t *testing.T) {
	blob := store.NewMemStore()
	require.NoError(t, blob.Set(conversation.DefaultKey, []byte("{definitely not an array")))

	s := conversation.NewStore(blob, conversation.DefaultKey, zaptest.NewLogger(t))

	convs := s.List()
	require.Len(t, convs, 1)
	assert.Equal(t, schemas.DefaultTitle, convs[0].Title)
}

func TestStore_CreatePrependsAndSelects(t *testing.T) {
	s, _ := newStore(t)
	first := s.CurrentID()

	created := s.Create()

	convs := s.List()
	require.Len(t, convs, 2)
	assert.Equal(t, created.ID, convs[0].ID, "new conversation must be first")
	assert.Equal(t, first, convs[1].ID)
	assert.Equal(t, created.ID, s.CurrentID())
}

func TestStore_SelectUnknownIDLeavesSelection(t *testing.T) {
	s, _ := newStore(t)
	current := s.CurrentID()

	err := s.Select("no-such-id")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.Equal(t, current, s.CurrentID())
}

func TestStore_AppendSetsTitleFromFirstUserMessageOnly(t *testing.T) {
	s, _ := newStore(t)
	id := s.CurrentID()

	require.NoError(t, s.Append(id, userMessage("find the cheapest flight to Lisbon in May")))
	require.NoError(t, s.Append(id, userMessage("second message that should not retitle")))

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "find the cheapest flight to Li...", current.Title)
	assert.Len(t, current.Messages, 2)
}

func TestStore_AppendToUnknownConversation(t *testing.T) {
	s, _ := newStore(t)
	err := s.Append("no-such-id", userMessage("hello"))
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	s, _ := newStore(t)
	id := s.CurrentID()

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.Append(id, userMessage(content)))
	}

	current, ok := s.Current()
	require.True(t, ok)
	var got []string
	for _, m := range current.Messages {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestStore_RemoveCurrentPromotesNextInOrder(t *testing.T) {
	s, _ := newStore(t)
	older := s.CurrentID()
	newer := s.Create().ID

	changed, err := s.Remove(newer)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, older, s.CurrentID())
}

func TestStore_RemoveNonCurrentKeepsSelection(t *testing.T) {
	s, _ := newStore(t)
	older := s.CurrentID()
	newer := s.Create().ID

	changed, err := s.Remove(older)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, newer, s.CurrentID())
	assert.Len(t, s.List(), 1)
}

func TestStore_RemoveLastConversationCreatesFreshOne(t *testing.T) {
	s, _ := newStore(t)
	only := s.CurrentID()

	changed, err := s.Remove(only)
	require.NoError(t, err)
	assert.True(t, changed)

	convs := s.List()
	require.Len(t, convs, 1)
	assert.NotEqual(t, only, convs[0].ID)
	assert.Equal(t, schemas.DefaultTitle, convs[0].Title)
	assert.Equal(t, convs[0].ID, s.CurrentID())
}

func TestStore_RemoveUnknownID(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Remove("no-such-id")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	blob := store.NewMemStore()
	s := conversation.NewStore(blob, conversation.DefaultKey, zaptest.NewLogger(t))
	id := s.CurrentID()

	require.NoError(t, s.Append(id, userMessage("find the cheapest flight")))
	require.NoError(t, s.Append(id, schemas.Message{
		ID:      "assistant-1",
		Role:    schemas.RoleAssistant,
		Content: "Found a $210 fare",
		Screenshots: []schemas.Screenshot{
			{URL: "a.png", Step: 1},
		},
		AgentActions: []schemas.AgentAction{
			{Title: "Browser Agent - Executing browser actions", Status: schemas.StatusExecuting},
		},
	}))
	s.Create()

	// A second store over the same blob must see the identical collection.
	restored := conversation.NewStore(blob, conversation.DefaultKey, zaptest.NewLogger(t))

	want, err := json.Marshal(s.List())
	require.NoError(t, err)
	got, err := json.Marshal(restored.List())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, s.CurrentID(), restored.CurrentID())
}

func TestStore_WriteThroughPersistsEveryMutation(t *testing.T) {
	blob := store.NewMemStore()
	s := conversation.NewStore(blob, conversation.DefaultKey, zaptest.NewLogger(t))

	require.NoError(t, s.Append(s.CurrentID(), userMessage("hello")))

	// Read the blob directly: the append must already be on disk.
	data, err := blob.Get(conversation.DefaultKey)
	require.NoError(t, err)
	var persisted []schemas.Conversation
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 1)
	require.Len(t, persisted[0].Messages, 1)
	assert.Equal(t, "hello", persisted[0].Messages[0].Content)
}

func TestStore_TitleTruncationBoundary(t *testing.T) {
	s, _ := newStore(t)
	id := s.CurrentID()

	exact := strings.Repeat("x", 30)
	require.NoError(t, s.Append(id, userMessage(exact)))

	current, _ := s.Current()
	assert.Equal(t, exact, current.Title, "a 30-rune message must not gain an ellipsis")
}
