// File: internal/session/session.go
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/conversation"
	"github.com/zerofrost11/cortex-client/internal/transport"
)

// DefaultExecutingDelay is how long the machine waits for a first progress
// signal before optimistically narrating that execution has begun. This is a
// UX accommodation for backend latency, not a correctness requirement.
const DefaultExecutingDelay = 1500 * time.Millisecond

// Narration titles for the in-flight agent action.
const (
	thinkingTitle    = "Thinking and working..."
	executingTitle   = "Browser Agent - Executing browser actions"
	initializingDesc = "Initializing browser agent..."
	errPrefix        = "Error: "
)

var (
	// ErrTaskInFlight rejects a task submission while one is already running.
	// Step indices and the single in-flight action are not keyed by task, so
	// two interleaved tasks would corrupt both accumulators.
	ErrTaskInFlight = errors.New("session: a task is already in flight")
	// ErrNoConversation signals that no conversation is selectable.
	ErrNoConversation = errors.New("session: no current conversation")
	// ErrStopped is returned for operations submitted after shutdown.
	ErrStopped = errors.New("session: stopped")
)

// Transport is the slice of the transport client the session consumes.
type Transport interface {
	Events() <-chan transport.Event
	Send(schemas.TaskRequest) error
}

// Snapshot is a consistent copy of the session's live state for the
// presentation layer.
type Snapshot struct {
	Status      schemas.AgentStatus
	Action      *schemas.AgentAction // Nil when no task is narrating.
	Screenshots []schemas.Screenshot // Accumulated for the in-flight task.
	Connected   bool
}

// Session is the state machine owning the agent-status lifecycle. All
// transitions run on a single dispatch goroutine: user intents, inbound
// transport events, and the optimistic timer are serialized onto it and each
// handler runs to completion, so handlers never race one another.
type Session struct {
	logger *zap.Logger
	tr     Transport
	convs  *conversation.Store
	delay  time.Duration

	intents chan func()
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	// Live state. Written only by the dispatch goroutine, read through mu by
	// Snapshot callers.
	mu          sync.RWMutex
	status      schemas.AgentStatus
	action      *schemas.AgentAction
	screenshots []schemas.Screenshot
	connected   bool

	// Optimistic thinking→executing timer. Touched only by the dispatch
	// goroutine; armed once per task, never rearmed.
	optimistic  *time.Timer
	optimisticC <-chan time.Time
}

// New builds a session over the given transport and conversation store and
// starts its dispatch loop.
func New(tr Transport, convs *conversation.Store, delay time.Duration, logger *zap.Logger) *Session {
	if delay <= 0 {
		delay = DefaultExecutingDelay
	}
	s := &Session{
		logger:  logger.Named("session"),
		tr:      tr,
		convs:   convs,
		delay:   delay,
		intents: make(chan func()),
		stopCh:  make(chan struct{}),
		status:  schemas.StatusIdle,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Stop halts the dispatch loop. Pending intents are abandoned.
func (s *Session) Stop() {
	s.stopped.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Snapshot returns a consistent copy of the live state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:    s.status,
		Connected: s.connected,
	}
	if s.action != nil {
		action := *s.action
		snap.Action = &action
	}
	if len(s.screenshots) > 0 {
		snap.Screenshots = make([]schemas.Screenshot, len(s.screenshots))
		copy(snap.Screenshots, s.screenshots)
	}
	return snap
}

// Conversations exposes the underlying store for read operations and direct
// listing by the presentation layer.
func (s *Session) Conversations() *conversation.Store {
	return s.convs
}

// SubmitTask appends the user message to the current conversation, arms the
// agent-status lifecycle, and sends the task to the backend. Rejected with
// ErrTaskInFlight while a previous task is still thinking or executing.
// Blank input is a no-op.
func (s *Session) SubmitTask(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.dispatch(func() error { return s.submitTask(text) })
}

// NewConversation creates and selects a fresh conversation and resets the
// live in-flight state.
func (s *Session) NewConversation() (schemas.Conversation, error) {
	var conv schemas.Conversation
	err := s.dispatch(func() error {
		conv = s.convs.Create()
		s.resetLive()
		return nil
	})
	return conv, err
}

// SelectConversation makes an existing conversation current and resets the
// live in-flight state. The selection is untouched when the id is unknown.
func (s *Session) SelectConversation(id string) error {
	return s.dispatch(func() error {
		if err := s.convs.Select(id); err != nil {
			return err
		}
		s.resetLive()
		return nil
	})
}

// DeleteConversation removes a conversation. When the current one goes away
// the next in order is promoted (or a fresh one created) and the live state
// resets; deleting a background conversation leaves the live state alone.
func (s *Session) DeleteConversation(id string) error {
	return s.dispatch(func() error {
		currentChanged, err := s.convs.Remove(id)
		if err != nil {
			return err
		}
		if currentChanged {
			s.resetLive()
		}
		return nil
	})
}

// dispatch runs fn on the dispatch goroutine and waits for its result, which
// gives every intent run-to-completion semantics against transport events.
func (s *Session) dispatch(fn func() error) error {
	done := make(chan error, 1)
	select {
	case s.intents <- func() { done <- fn() }:
	case <-s.stopCh:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-s.stopCh:
		return ErrStopped
	}
}

// run is the single dispatch loop. Each case runs to completion before the
// next event is taken, which is the whole concurrency story of this package.
func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			s.disarmOptimistic()
			return
		case fn := <-s.intents:
			fn()
		case ev := <-s.tr.Events():
			s.handleTransportEvent(ev)
		case <-s.optimisticC:
			s.handleOptimisticAdvance()
		}
	}
}

func (s *Session) submitTask(text string) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status == schemas.StatusThinking || status == schemas.StatusExecuting {
		s.logger.Warn("Rejecting task submission: a task is already in flight.")
		return ErrTaskInFlight
	}

	convID := s.convs.CurrentID()
	if convID == "" {
		return ErrNoConversation
	}

	// The user message lands locally and synchronously; connectivity problems
	// never unwind it.
	if err := s.convs.Append(convID, schemas.Message{
		ID:        uuid.New().String(),
		Role:      schemas.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.status = schemas.StatusThinking
	s.screenshots = nil
	s.action = &schemas.AgentAction{
		Title:  thinkingTitle,
		Status: schemas.StatusThinking,
	}
	s.mu.Unlock()

	s.armOptimistic()

	if err := s.tr.Send(schemas.TaskRequest{Task: text}); err != nil {
		// Surfaced through the connectivity indicator; the task narration
		// stays up and the supervisor works on getting us back online.
		s.logger.Warn("Task could not be sent.", zap.Error(err))
	}
	return nil
}

func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.KindOpened:
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.logger.Info("Agent connection established.")

	case transport.KindClosed:
		// Connection loss forces idle but does not finalize or discard any
		// message data already appended.
		s.disarmOptimistic()
		s.mu.Lock()
		s.connected = false
		s.status = schemas.StatusIdle
		s.mu.Unlock()
		s.logger.Warn("Agent connection lost.")

	case transport.KindError:
		// Recovered by the supervisor; surfaced only as connectivity.
		s.logger.Warn("Transport error.", zap.Error(ev.Err))

	case transport.KindFrame:
		for _, event := range ev.Frame.Events() {
			s.applyEvent(event)
		}
	}
}

func (s *Session) applyEvent(ev schemas.Event) {
	switch ev.Kind {
	case schemas.EventProgress:
		s.applyProgress(ev.Screenshot)
	case schemas.EventError:
		s.finalize(schemas.StatusError, errPrefix+ev.Message)
	case schemas.EventDone:
		s.finalize(schemas.StatusDone, ev.Result)
	}
}

// applyProgress appends one screenshot, advances thinking→executing if the
// optimistic timer has not already done so, and refreshes the narration.
func (s *Session) applyProgress(shot schemas.Screenshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schemas.StatusThinking {
		s.status = schemas.StatusExecuting
	}
	if s.status != schemas.StatusExecuting {
		// Progress for a task that is no longer in flight (finalized or
		// abandoned via conversation switch) has nowhere to go.
		s.logger.Debug("Ignoring progress outside an executing task.",
			zap.Int("step", shot.Step))
		return
	}

	s.screenshots = append(s.screenshots, shot)
	s.action = &schemas.AgentAction{
		Title:       executingTitle,
		Description: fmt.Sprintf("Step %d: Processing", shot.Step),
		Status:      schemas.StatusExecuting,
	}
}

// finalize folds the in-flight action and screenshots into a new immutable
// assistant message, appends it to the current conversation, and resets the
// live accumulators.
func (s *Session) finalize(status schemas.AgentStatus, content string) {
	s.disarmOptimistic()

	s.mu.Lock()
	msg := schemas.Message{
		ID:        uuid.New().String(),
		Role:      schemas.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if s.action != nil {
		msg.AgentActions = []schemas.AgentAction{*s.action}
	}
	if len(s.screenshots) > 0 {
		msg.Screenshots = make([]schemas.Screenshot, len(s.screenshots))
		copy(msg.Screenshots, s.screenshots)
	}
	s.status = status
	s.action = nil
	s.screenshots = nil
	s.mu.Unlock()

	convID := s.convs.CurrentID()
	if convID == "" {
		s.logger.Error("Finalization with no current conversation, dropping message.")
		return
	}
	if err := s.convs.Append(convID, msg); err != nil {
		s.logger.Error("Failed to append finalized message.", zap.Error(err))
	}
}

// handleOptimisticAdvance narrates executing before the first progress signal
// arrives. Fires at most once per task; a stale fire after the genuine first
// progress (or after any finalization) is a no-op.
func (s *Session) handleOptimisticAdvance() {
	s.optimisticC = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schemas.StatusThinking {
		return
	}
	s.status = schemas.StatusExecuting
	s.action = &schemas.AgentAction{
		Title:       executingTitle,
		Description: initializingDesc,
		Status:      schemas.StatusExecuting,
	}
}

// resetLive clears the in-flight accumulators and returns the machine to
// idle. Called on conversation create/select and current-conversation delete.
func (s *Session) resetLive() {
	s.disarmOptimistic()
	s.mu.Lock()
	s.status = schemas.StatusIdle
	s.action = nil
	s.screenshots = nil
	s.mu.Unlock()
}

func (s *Session) armOptimistic() {
	s.disarmOptimistic()
	s.optimistic = time.NewTimer(s.delay)
	s.optimisticC = s.optimistic.C
}

func (s *Session) disarmOptimistic() {
	if s.optimistic != nil {
		s.optimistic.Stop()
		s.optimistic = nil
	}
	s.optimisticC = nil
}
