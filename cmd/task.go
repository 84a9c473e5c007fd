// File: cmd/task.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/config"
	"github.com/zerofrost11/cortex-client/internal/conversation"
	"github.com/zerofrost11/cortex-client/internal/observability"
	"github.com/zerofrost11/cortex-client/internal/session"
	"github.com/zerofrost11/cortex-client/internal/store"
	"github.com/zerofrost11/cortex-client/internal/transport"
)

// pollInterval is how often the task command samples the session while a
// submission is in flight.
const pollInterval = 100 * time.Millisecond

// newTaskCmd creates and configures the `task` command.
func newTaskCmd() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task [text...]",
		Short: "Submits a task to the agent and streams its progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			text := strings.Join(args, " ")

			resume, err := cmd.Flags().GetString("resume")
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}

			components, err := initializeClientComponents(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize client components: %w", err)
			}
			defer components.Shutdown()

			if resume != "" {
				if err := components.Session.SelectConversation(resume); err != nil {
					return fmt.Errorf("cannot resume conversation %s: %w", resume, err)
				}
			} else if current, ok := components.Conversations.Current(); ok && len(current.Messages) > 0 {
				// Without --resume each invocation starts a fresh
				// conversation rather than growing the restored one.
				if _, err := components.Session.NewConversation(); err != nil {
					return err
				}
			}

			if err := components.Session.SubmitTask(text); err != nil {
				return err
			}
			logger.Info("Task submitted",
				zap.String("conversation_id", components.Conversations.CurrentID()),
			)

			return streamTask(ctx, cmd, components.Session, timeout)
		},
	}

	taskCmd.Flags().String("resume", "", "Conversation ID to continue. Defaults to a fresh conversation.")
	taskCmd.Flags().Duration("timeout", 10*time.Minute, "Give up waiting for the agent after this long.")

	return taskCmd
}

// clientComponents holds the initialized client stack.
type clientComponents struct {
	Conversations *conversation.Store
	Session       *session.Session
	Supervisor    *transport.Supervisor
}

// Shutdown stops the session loop first so no intent races the closing
// transport, then tears down the connection.
func (cc *clientComponents) Shutdown() {
	if cc.Session != nil {
		cc.Session.Stop()
	}
	if cc.Supervisor != nil {
		cc.Supervisor.Stop()
	}
}

// initializeClientComponents handles dependency injection for the commands
// that talk to the agent.
func initializeClientComponents(cfg *config.Config, logger *zap.Logger) (*clientComponents, error) {
	blob, err := store.NewFileStore(cfg.Store().Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	conversations := conversation.NewStore(blob, cfg.Store().Key, logger)

	client := transport.NewClient(cfg.Agent().URL, cfg.Agent().HandshakeTimeout, logger)
	supervisor := transport.NewSupervisor(client, transport.Policy{
		Interval:    cfg.Reconnect().Interval,
		MaxAttempts: cfg.Reconnect().MaxAttempts,
	}, logger)

	sess := session.New(client, conversations, cfg.Agent().ExecutingDelay, logger)

	return &clientComponents{
		Conversations: conversations,
		Session:       sess,
		Supervisor:    supervisor,
	}, nil
}

// streamTask polls the session until the agent finishes, printing each state
// transition and screenshot as it lands.
func streamTask(ctx context.Context, cmd *cobra.Command, sess *session.Session, timeout time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var (
		lastStatus schemas.AgentStatus
		lastDesc   string
		seenShots  int
	)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("task aborted by user signal")
		case <-deadline.C:
			return fmt.Errorf("timed out after %s waiting for the agent", timeout)
		case <-ticker.C:
		}

		snap := sess.Snapshot()
		prevStatus := lastStatus
		lastStatus = snap.Status

		if snap.Action != nil && (snap.Status != prevStatus || snap.Action.Description != lastDesc) {
			cmd.Printf("[%s] %s\n", snap.Status, snap.Action.Title)
			if snap.Action.Description != "" {
				cmd.Printf("      %s\n", snap.Action.Description)
			}
			lastDesc = snap.Action.Description
		}

		for ; seenShots < len(snap.Screenshots); seenShots++ {
			shot := snap.Screenshots[seenShots]
			// Inline payloads win over URLs when both are present.
			if shot.Base64 != "" {
				cmd.Printf("      step %d screenshot: (inline image, %d bytes)\n", shot.Step, len(shot.Base64))
			} else {
				cmd.Printf("      step %d screenshot: %s\n", shot.Step, shot.URL)
			}
		}

		switch snap.Status {
		case schemas.StatusDone, schemas.StatusError:
			return printOutcome(cmd, sess)
		case schemas.StatusIdle:
			// The submission left the session thinking, so observing idle
			// again means the connection dropped mid-task.
			return fmt.Errorf("connection to the agent was lost")
		}
	}
}

// printOutcome renders the final assistant message of the current
// conversation.
func printOutcome(cmd *cobra.Command, sess *session.Session) error {
	current, ok := sess.Conversations().Current()
	if !ok || len(current.Messages) == 0 {
		return fmt.Errorf("agent finished but no response was recorded")
	}

	final := current.Messages[len(current.Messages)-1]
	cmd.Printf("\n%s\n", final.Content)
	cmd.Printf("\nConversation: %s (%s)\n", current.Title, current.ID)
	return nil
}
