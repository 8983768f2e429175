package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/device"
	"biotune/backend/services/bridge-service/internal/metrics"
)

var (
	ErrAlreadyRunning = errors.New("session: already running")
	ErrNotRunning     = errors.New("session: not running")
	ErrStartFailed    = errors.New("session: start failed")
)

// StartError is returned when the device could not be told to start. The
// session is left idle.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("session: start failed: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStartFailed) match.
func (e *StartError) Is(target error) bool { return target == ErrStartFailed }

// State of the measurement session.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Status is a read-only snapshot of the session.
type Status struct {
	ID            string
	State         State
	StartedAt     time.Time
	DevicePresent bool
}

// Active reports whether a session is running.
func (s Status) Active() bool { return s.State == StateActive }

// EventType names a session transition.
type EventType string

const (
	EventStarted EventType = "session_started"
	EventStopped EventType = "session_stopped"
)

// Stop reasons carried on EventStopped.
const (
	ReasonRequested = "requested"
	ReasonLinkLost  = "link_lost"
)

// Event is delivered to OnChange listeners after each committed transition.
type Event struct {
	Type   EventType
	Status Status
	Reason string
}

// Runner is one session's ingestion work. Run returns nil when ctx is
// cancelled and an error when it had to give up on its own.
type Runner interface {
	Run(ctx context.Context) error
}

// Spawner builds the Runner for a new session.
type Spawner func(sessionID string) Runner

// Options tunes the start sequence.
type Options struct {
	StartSettle time.Duration `yaml:"startSettle" env:"BRIDGE_SESSION_START_SETTLE"`
}

type run struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Controller owns the session state. Start and Stop are serialized by one
// lock held for the whole transition, settle delay included, so at most one
// Runner is ever live.
type Controller struct {
	link    device.Link
	spawn   Spawner
	settle  time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	// transition lock
	mu        sync.Mutex
	listeners []func(Event)

	stateMu sync.RWMutex
	state   State
	current *run

	newID func() string
	now   func() time.Time
}

// New returns an idle controller.
func New(link device.Link, spawn Spawner, opts Options, logger *zap.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		link:    link,
		spawn:   spawn,
		settle:  opts.StartSettle,
		logger:  logger,
		metrics: m,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// OnChange registers fn for transition events. fn runs with the transition
// lock held and must not call Start or Stop.
func (c *Controller) OnChange(fn func(Event)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Status returns the current snapshot. It does not wait for an in-progress
// transition.
func (c *Controller) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Status {
	st := Status{State: c.state, DevicePresent: c.link.Present()}
	if c.current != nil {
		st.ID = c.current.id
		st.StartedAt = c.current.startedAt
	}
	return st
}

func (c *Controller) set(state State, r *run) Status {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = state
	c.current = r
	return c.snapshotLocked()
}

// Start begins a session. The caller blocks for the settle delay; cancelling
// ctx during it aborts the start.
func (c *Controller) Start(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.Status(); st.Active() {
		return st, ErrAlreadyRunning
	}

	r := &run{id: c.newID(), startedAt: c.now().UTC()}
	logger := c.logger.With(zap.String("session_id", r.id))

	if !c.link.Present() {
		st := c.set(StateActive, r)
		logger.Warn("device absent, session started without ingestion")
		c.committed(Event{Type: EventStarted, Status: st}, "started")
		return st, nil
	}

	c.set(StateActive, r)

	if err := c.link.ResetInput(); err != nil {
		logger.Warn("reset serial input failed", zap.Error(err))
	}
	if err := c.link.WriteCommand(device.CommandStart); err != nil {
		c.set(StateIdle, nil)
		c.metrics.SessionEvents.WithLabelValues("start_failed").Inc()
		logger.Error("write START failed", zap.Error(err))
		return c.Status(), &StartError{Err: err}
	}
	logger.Info("START sent, waiting for device to settle", zap.Duration("settle", c.settle))

	if !sleepWithContext(ctx, c.settle) {
		if err := c.link.WriteCommand(device.CommandStop); err != nil {
			logger.Warn("write STOP after aborted start failed", zap.Error(err))
		}
		c.set(StateIdle, nil)
		c.metrics.SessionEvents.WithLabelValues("start_failed").Inc()
		logger.Warn("start aborted during settle", zap.Error(ctx.Err()))
		return c.Status(), &StartError{Err: ctx.Err()}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go c.supervise(runCtx, r, c.spawn(r.id))

	st := c.Status()
	logger.Info("session started")
	c.committed(Event{Type: EventStarted, Status: st}, "started")
	return st, nil
}

// Stop ends the active session. STOP is written best effort: the session is
// idle afterwards even if the write fails. Stop returns only after the
// Runner has exited, so nothing from the old session is uploaded later.
func (c *Controller) Stop(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.RLock()
	r, state := c.current, c.state
	c.stateMu.RUnlock()
	if state != StateActive || r == nil {
		return c.Status(), ErrNotRunning
	}

	logger := c.logger.With(zap.String("session_id", r.id))
	st := c.set(StateIdle, nil)

	if r.cancel != nil {
		r.cancel()
	}
	if c.link.Present() {
		if err := c.link.WriteCommand(device.CommandStop); err != nil {
			logger.Warn("write STOP failed, session stopped anyway", zap.Error(err))
		}
	}
	if r.done != nil {
		<-r.done
	}

	logger.Info("session stopped", zap.Duration("duration", c.now().UTC().Sub(r.startedAt)))
	c.committed(Event{Type: EventStopped, Status: st, Reason: ReasonRequested}, "stopped")
	return st, nil
}

func (c *Controller) supervise(ctx context.Context, r *run, runner Runner) {
	err := runner.Run(ctx)
	close(r.done)
	if err != nil && ctx.Err() == nil {
		c.expire(r, err)
	}
}

// expire resets the session after its Runner gave up, unless a Stop or a
// newer Start already replaced it.
func (c *Controller) expire(r *run, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.RLock()
	current := c.current
	c.stateMu.RUnlock()
	if current != r {
		return
	}

	st := c.set(StateIdle, nil)
	c.logger.Error("session ended by ingestion failure",
		zap.String("session_id", r.id),
		zap.Error(cause))
	c.committed(Event{Type: EventStopped, Status: st, Reason: ReasonLinkLost}, "expired")
}

func (c *Controller) committed(ev Event, metricEvent string) {
	c.metrics.SessionEvents.WithLabelValues(metricEvent).Inc()
	if ev.Status.Active() {
		c.metrics.SessionActive.Set(1)
	} else {
		c.metrics.SessionActive.Set(0)
	}
	for _, fn := range c.listeners {
		fn(ev)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
