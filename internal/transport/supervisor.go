// File: internal/transport/supervisor.go
package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultProbeInterval is how often the supervisor checks connection liveness
// when no policy override is given.
const DefaultProbeInterval = 5 * time.Second

// Conn is the slice of the Client the supervisor needs. Split out so the
// reconnect policy can be tested without a real socket.
type Conn interface {
	Open() error
	Close()
	IsOpen() bool
}

// Policy controls the supervisor's reconnect behavior.
type Policy struct {
	// Interval between liveness probes. Defaults to DefaultProbeInterval.
	Interval time.Duration
	// MaxAttempts caps consecutive failed re-opens before the supervisor
	// gives up probing. Zero means retry indefinitely.
	MaxAttempts int
}

// Supervisor wraps a Conn with a periodic liveness probe that re-opens the
// connection whenever it is found closed. Connection-loss policy lives here,
// decoupled from message semantics.
type Supervisor struct {
	conn     Conn
	policy   Policy
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSupervisor dials immediately and starts the probe loop. The initial dial
// failing is not fatal; the probe keeps retrying per policy.
func NewSupervisor(conn Conn, policy Policy, logger *zap.Logger) *Supervisor {
	if policy.Interval <= 0 {
		policy.Interval = DefaultProbeInterval
	}

	s := &Supervisor{
		conn:   conn,
		policy: policy,
		logger: logger.Named("supervisor"),
		stopCh: make(chan struct{}),
	}

	if err := conn.Open(); err != nil {
		s.logger.Warn("Initial connect failed, will retry.", zap.Error(err))
	}

	s.wg.Add(1)
	go s.probeLoop()
	return s
}

// Stop halts the probe and closes the transport. Both happen together so a
// late probe cannot resurrect a connection after intentional shutdown.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.conn.Close()
	})
}

func (s *Supervisor) probeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.policy.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.conn.IsOpen() {
				failures = 0
				continue
			}

			s.logger.Info("Connection down, attempting reconnect.")
			if err := s.conn.Open(); err != nil {
				failures++
				if s.policy.MaxAttempts > 0 && failures >= s.policy.MaxAttempts {
					s.logger.Error("Reconnect attempts exhausted, giving up.",
						zap.Int("attempts", failures))
					return
				}
				continue
			}
			failures = 0
		}
	}
}
