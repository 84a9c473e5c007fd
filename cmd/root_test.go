// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/config"
	"github.com/zerofrost11/cortex-client/internal/conversation"
	"github.com/zerofrost11/cortex-client/internal/store"
)

// seedConversation writes one finished conversation into the given store
// directory and returns its ID.
func seedConversation(t *testing.T, dir, key string) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	blob, err := store.NewFileStore(dir, logger)
	require.NoError(t, err)

	conversations := conversation.NewStore(blob, key, logger)
	id := conversations.CurrentID()
	require.NoError(t, conversations.Append(id, schemas.Message{
		ID:        "m1",
		Role:      schemas.RoleUser,
		Content:   "book a table for two",
		Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, conversations.Append(id, schemas.Message{
		ID:        "m2",
		Role:      schemas.RoleAssistant,
		Content:   "Booked for 19:00.",
		Timestamp: time.Now().UTC(),
	}))
	return id
}

// useTestConfig points the package-level config at an isolated store.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	testCfg := config.NewDefaultConfig()
	testCfg.SetStoreDir(t.TempDir())

	prev := cfg
	cfg = testCfg
	t.Cleanup(func() { cfg = prev })
	return testCfg
}

func runCommand(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

func TestHistoryCommand_ListsConversations(t *testing.T) {
	testCfg := useTestConfig(t)
	id := seedConversation(t, testCfg.Store().Dir, testCfg.Store().Key)

	out, err := runCommand(t, newHistoryCmd())
	require.NoError(t, err)

	assert.Contains(t, out, id)
	assert.Contains(t, out, "book a table for two")
	assert.Contains(t, out, "2 messages")
}

func TestHistoryCommand_EmptyStore(t *testing.T) {
	useTestConfig(t)

	// A fresh store holds exactly one empty conversation.
	out, err := runCommand(t, newHistoryCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "New Chat")
	assert.Contains(t, out, "0 messages")
}

func TestHistoryShowCommand(t *testing.T) {
	testCfg := useTestConfig(t)
	id := seedConversation(t, testCfg.Store().Dir, testCfg.Store().Key)

	history := newHistoryCmd()
	out, err := runCommand(t, history, "show", id)
	require.NoError(t, err)

	assert.Contains(t, out, "[user] book a table for two")
	assert.Contains(t, out, "[assistant] Booked for 19:00.")
}

func TestHistoryShowCommand_UnknownID(t *testing.T) {
	useTestConfig(t)

	_, err := runCommand(t, newHistoryCmd(), "show", "missing-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestHistoryRemoveCommand(t *testing.T) {
	testCfg := useTestConfig(t)
	id := seedConversation(t, testCfg.Store().Dir, testCfg.Store().Key)

	_, err := runCommand(t, newHistoryCmd(), "rm", id)
	require.NoError(t, err)

	out, err := runCommand(t, newHistoryCmd())
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestTaskCommand_RequiresArgs(t *testing.T) {
	useTestConfig(t)

	_, err := runCommand(t, newTaskCmd())
	require.Error(t, err)
}

func TestInitializeConfig_EnvOverride(t *testing.T) {
	t.Setenv("CORTEX_AGENT_URL", "wss://env.example.com/ws")
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig())
	resolved, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/ws", resolved.Agent().URL)
}
