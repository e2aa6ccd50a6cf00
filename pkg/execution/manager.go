// Package execution manages the remote execution context that user code runs
// in. The context is created lazily, recreated when the remote reports that it
// was lost, and torn down when the session ends.
package execution

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// State is the lifecycle state of an execution context.
type State int

const (
	// Uninitialized means no context has been created yet.
	Uninitialized State = iota

	// Creating means a context is being created and set up.
	Creating

	// Active means the context is usable.
	Active

	// Invalid means the remote reported that the context no longer exists.
	Invalid

	// Destroyed means the manager was shut down. It can't be used again.
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Creating:
		return "Creating"
	case Active:
		return "Active"
	case Invalid:
		return "Invalid"
	case Destroyed:
		return "Destroyed"
	}
	return "Unknown"
}

// Reason is why a context is being set up.
type Reason int

const (
	// ReasonInitial is the first context of the session.
	ReasonInitial Reason = iota

	// ReasonReconnect replaces a context that was lost.
	ReasonReconnect
)

func (r Reason) String() string {
	if r == ReasonReconnect {
		return "reconnect"
	}
	return "initial"
}

// Context is a snapshot of the remote execution context.
type Context struct {
	ID        string
	State     State
	CreatedAt time.Time
	SessionID string
}

// SetupFunc prepares a newly created context before any user code runs in
// it. `runner` runs code in the new context.
type SetupFunc func(ctx context.Context, runner remote.Runner, reason Reason) error

// Options configures a Manager. Apart from PollInterval, zero durations are
// used as is, so callers should start from DefaultOptions.
type Options struct {
	ClusterID string
	SessionID string

	// CreateTimeout bounds the call that creates the context.
	CreateTimeout time.Duration

	// ExecTimeout bounds a command from submission to completion. Zero
	// means unlimited.
	ExecTimeout time.Duration

	// PollInterval is the initial delay between status polls. It grows by
	// half after each poll, up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// PollTimeout bounds a single status poll. A poll that times out is
	// retried.
	PollTimeout time.Duration

	// StabilizeDelay is how long to wait before recreating a context that
	// was lost, so that the cluster has time to recover.
	StabilizeDelay time.Duration

	AllowReconnect bool

	Clock      clockwork.Clock
	Setup      SetupFunc
	Progress   func(string)
	Classifier *Classifier

	// Cluster is used to start the cluster if it's not running. If it's
	// nil, the cluster is assumed to be running.
	Cluster remote.ClusterAPI
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CreateTimeout:   120 * time.Second,
		PollInterval:    500 * time.Millisecond,
		MaxPollInterval: 2 * time.Second,
		PollTimeout:     30 * time.Second,
		StabilizeDelay:  2 * time.Second,
		AllowReconnect:  true,
	}
}

// cleanupTimeout bounds best-effort remote cleanup, which runs even after
// the caller's context is cancelled.
const cleanupTimeout = 30 * time.Second

var errDestroyed = errors.New("execution context manager has been shut down")

var errPollTimeout = errors.New("timed out polling command status")

// Manager owns the execution context of a session. It's driven by a single
// flow: only one command may be outstanding at a time.
type Manager struct {
	api     remote.ContextAPI
	opts    Options
	current Context

	// inFlight is 1 while Submit is running.
	inFlight int32
}

// New returns a manager that creates contexts on `opts.ClusterID`. No
// context is created until it's needed.
func New(api remote.ContextAPI, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Classifier == nil {
		opts.Classifier = DefaultClassifier()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	return &Manager{
		api:     api,
		opts:    opts,
		current: Context{State: Uninitialized, SessionID: opts.SessionID},
	}
}

// Context returns a snapshot of the current execution context.
func (m *Manager) Context() Context {
	return m.current
}

// Create creates and sets up a new execution context. It's a no-op if the
// current context is Active.
func (m *Manager) Create(ctx context.Context) error {
	switch m.current.State {
	case Active:
		return nil
	case Destroyed:
		return errDestroyed
	case Creating:
		return errors.New("execution context is already being created")
	}
	return m.create(ctx)
}

// EnsureActive creates a context if there isn't an Active one, and returns
// whether it did.
func (m *Manager) EnsureActive(ctx context.Context) (bool, error) {
	if m.current.State == Active {
		return false, nil
	}
	if err := m.Create(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) create(ctx context.Context) error {
	prev := m.current.State
	reason := ReasonInitial
	if prev == Invalid {
		reason = ReasonReconnect
	}

	// The lost context may still be holding resources on the cluster.
	if prev == Invalid && m.current.ID != "" {
		m.destroyRemote(context.Background(), m.current.ID)
		m.current.ID = ""
	}

	revert := func() {
		m.current = Context{State: prev, SessionID: m.opts.SessionID}
	}

	m.current = Context{State: Creating, SessionID: m.opts.SessionID}
	id, err := m.createRemote(ctx)
	if err != nil {
		revert()
		return errors.ContextCreationError{Err: err}
	}

	m.current.ID = id
	m.current.CreatedAt = m.opts.Clock.Now()
	log.WithField("context", id).
		WithField("reason", reason).
		Debug("Created execution context")

	if m.opts.Setup != nil {
		runner := contextRunner{manager: m}
		if err := m.opts.Setup(ctx, runner, reason); err != nil {
			m.destroyRemote(context.Background(), id)
			revert()
			return errors.ContextCreationError{
				Err: errors.WithContext(err, "set up context"),
			}
		}
	}

	m.current.State = Active
	return nil
}

func (m *Manager) createRemote(ctx context.Context) (string, error) {
	if m.opts.Cluster != nil {
		if err := m.opts.Cluster.EnsureRunning(ctx, m.opts.ClusterID); err != nil {
			log.WithError(err).WithField("cluster", m.opts.ClusterID).
				Warn("Failed to make sure the cluster is running. " +
					"Trying to create the execution context anyway.")
		}
	}

	createCtx := ctx
	if m.opts.CreateTimeout > 0 {
		var cancel context.CancelFunc
		createCtx, cancel = context.WithTimeout(ctx, m.opts.CreateTimeout)
		defer cancel()
	}

	id, err := m.api.Create(createCtx, m.opts.ClusterID)
	if err != nil {
		if ctx.Err() == nil && createCtx.Err() == context.DeadlineExceeded {
			return "", errors.New("timed out after %s", m.opts.CreateTimeout)
		}
		return "", err
	}
	return id, nil
}

// Submit runs `code` in the execution context, creating the context if
// necessary. If the context is lost while running the command, the context
// is recreated and the command is retried once.
//
// An exception raised by the code isn't returned as an error. It's available
// from the command's Err method.
func (m *Manager) Submit(ctx context.Context, code string) (*Command, error) {
	if !atomic.CompareAndSwapInt32(&m.inFlight, 0, 1) {
		return nil, errors.ErrCommandInProgress
	}
	defer atomic.StoreInt32(&m.inFlight, 0)

	if m.current.State == Destroyed {
		return nil, errDestroyed
	}

	if _, err := m.EnsureActive(ctx); err != nil {
		return nil, err
	}

	cmd, err := m.run(ctx, code, m.opts.Progress)
	invalid, ok := err.(errors.ContextInvalidated)
	if !ok {
		return cmd, err
	}

	if !m.opts.AllowReconnect {
		invalid.Fatal = true
		invalid.ReconnectDisabled = true
		return cmd, invalid
	}

	log.WithField("context", cmd.ContextID).
		Warn("The execution context was lost. Reconnecting.")
	if err := m.reconnect(ctx); err != nil {
		return cmd, err
	}

	cmd, err = m.run(ctx, code, m.opts.Progress)
	if invalid, ok := err.(errors.ContextInvalidated); ok {
		invalid.Fatal = true
		return cmd, invalid
	}
	if err == nil {
		cmd.Result.Reconnected = true
	}
	return cmd, err
}

func (m *Manager) reconnect(ctx context.Context) error {
	select {
	case <-m.opts.Clock.After(m.opts.StabilizeDelay):
	case <-ctx.Done():
		return errors.WithContext(ctx.Err(), "wait to reconnect")
	}
	return m.create(ctx)
}

// MarkInvalid records that the remote reported that the context was lost
// outside of Submit.
func (m *Manager) MarkInvalid(reason string) {
	if m.current.State != Active {
		return
	}

	log.WithField("context", m.current.ID).
		WithField("reason", reason).
		Debug("Execution context invalidated")
	m.current.State = Invalid
}

// IsInvalidation returns whether `err` reports that the context was lost.
func (m *Manager) IsInvalidation(err error) bool {
	if err == nil {
		return false
	}
	var invalid errors.ContextInvalidated
	if errors.As(err, &invalid) {
		return true
	}
	return m.opts.Classifier.IsInvalidation(err.Error())
}

// Destroy tears down the execution context. The manager can't be used
// afterwards.
func (m *Manager) Destroy(ctx context.Context) {
	if m.current.State == Destroyed {
		return
	}

	if m.current.ID != "" {
		m.destroyRemote(ctx, m.current.ID)
	}
	m.current = Context{State: Destroyed, SessionID: m.opts.SessionID}
}

func (m *Manager) destroyRemote(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	if err := m.api.Destroy(ctx, m.opts.ClusterID, id); err != nil {
		log.WithError(err).WithField("context", id).
			Warn("Failed to destroy execution context")
	}
}

// Runner returns a runner for the Active context. Commands run through it
// don't retry when the context is lost.
func (m *Manager) Runner() remote.Runner {
	return contextRunner{manager: m, requireActive: true}
}

func (m *Manager) run(ctx context.Context, code string, report func(string)) (*Command, error) {
	cmd := &Command{
		ContextID: m.current.ID,
		Source:    code,
		State:     remote.Queued,
	}

	execCtx := ctx
	if m.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, m.opts.ExecTimeout)
		defer cancel()
	}

	id, err := m.api.Execute(execCtx, m.opts.ClusterID, cmd.ContextID, code)
	if err != nil {
		cmd.State = remote.Error
		if execCtx.Err() != nil {
			return cmd, m.timeoutError(ctx, cmd)
		}
		return cmd, m.remoteError(err, "submit command")
	}

	cmd.ID = id
	return cmd, m.poll(ctx, execCtx, cmd, &progress{report: report})
}

// poll waits for `cmd` to finish. `parent` is the caller's context, and
// `ctx` is additionally bounded by the execution timeout.
func (m *Manager) poll(parent, ctx context.Context, cmd *Command, prog *progress) error {
	interval := m.opts.PollInterval
	for {
		status, err := m.status(ctx, cmd)
		switch {
		case err == nil:
			cmd.State = status.State
			cmd.Result.Output = status.Output
			if status.State.Done() {
				return m.finish(status)
			}
		case ctx.Err() != nil:
			cmd.State = remote.Error
			return m.timeoutError(parent, cmd)
		case err == errPollTimeout:
			log.WithField("command", cmd.ID).Warn("Polling command status timed out. Retrying.")
		default:
			cmd.State = remote.Error
			return m.remoteError(err, "poll command")
		}

		prog.tick()
		select {
		case <-m.opts.Clock.After(interval):
		case <-ctx.Done():
			cmd.State = remote.Error
			return m.timeoutError(parent, cmd)
		}

		interval = interval * 3 / 2
		if m.opts.MaxPollInterval > 0 && interval > m.opts.MaxPollInterval {
			interval = m.opts.MaxPollInterval
		}
	}
}

func (m *Manager) status(ctx context.Context, cmd *Command) (remote.CommandStatus, error) {
	pollCtx := ctx
	if m.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, m.opts.PollTimeout)
		defer cancel()
	}

	status, err := m.api.Status(pollCtx, m.opts.ClusterID, cmd.ContextID, cmd.ID)
	if err != nil && ctx.Err() == nil && pollCtx.Err() == context.DeadlineExceeded {
		return remote.CommandStatus{}, errPollTimeout
	}
	return status, err
}

func (m *Manager) finish(status remote.CommandStatus) error {
	if status.State != remote.Error {
		return nil
	}

	msg := status.Error
	if msg == "" {
		msg = "the cluster failed to run the command"
	}
	return m.remoteError(errors.New(msg), "run command")
}

// remoteError converts an error from the remote into a ContextInvalidated if
// it reports that the context was lost.
func (m *Manager) remoteError(err error, action string) error {
	msg := err.Error()
	if !m.opts.Classifier.IsInvalidation(msg) {
		return errors.WithContext(err, action)
	}

	m.MarkInvalid(msg)
	return errors.ContextInvalidated{Message: msg}
}

func (m *Manager) timeoutError(parent context.Context, cmd *Command) error {
	if cmd.ID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		err := m.api.Cancel(ctx, m.opts.ClusterID, cmd.ContextID, cmd.ID)
		if err != nil {
			log.WithError(err).WithField("command", cmd.ID).
				Debug("Failed to cancel command")
		}
	}

	timeoutErr := errors.CommandTimeoutError{CommandID: cmd.ID}
	if parent.Err() == nil {
		timeoutErr.Timeout = m.opts.ExecTimeout
	}
	return timeoutErr
}

// contextRunner runs code in the manager's current context without the
// in-flight guard, so that it can be used while setting up a context.
type contextRunner struct {
	manager       *Manager
	requireActive bool
}

func (r contextRunner) Run(ctx context.Context, code string) (string, error) {
	if r.requireActive && r.manager.current.State != Active {
		return "", errors.New("execution context is %s", r.manager.current.State)
	}

	cmd, err := r.manager.run(ctx, code, nil)
	if err != nil {
		return "", err
	}

	if cmd.State != remote.Finished {
		return "", errors.New("command was %s", cmd.State)
	}

	if err := cmd.Err(); err != nil {
		return cmd.Stdout(), err
	}
	return cmd.Stdout(), nil
}
