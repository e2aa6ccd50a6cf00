// Package session ties file sync and the execution context together. Each
// command runs against an up to date copy of the project, and a replacement
// context is synced before it's used.
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/config"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/execution"
	"github.com/sidkik/dbkernel/pkg/remote"
	"github.com/sidkik/dbkernel/pkg/sync"
)

// Remote bundles the workspace APIs that a session uses.
type Remote struct {
	Contexts remote.ContextAPI
	Cluster  remote.ClusterAPI
	Users    remote.UserAPI
	Storage  remote.Storage

	// Workspace removes the synced directory when there's no context to do
	// it through. If it's nil, the directory is only removed from an Active
	// context.
	Workspace remote.WorkspaceAPI
}

// Options are the settings that aren't part of the user's configuration.
type Options struct {
	Clock    clockwork.Clock
	Progress func(string)
}

// Session runs code on the cluster against the local project.
type Session struct {
	id     string
	cfg    config.Config
	remote Remote
	target string

	manager *execution.Manager
	syncer  sync.Syncer

	// lastSync is the result of the sync run while setting up the current
	// context.
	lastSync sync.ChangeSet
}

// New prepares a session. Nothing is created on the cluster until the
// session is first used.
func New(ctx context.Context, cfg config.Config, rem Remote, opts Options) (*Session, error) {
	user, err := rem.Users.CurrentUser(ctx)
	if err != nil {
		return nil, errors.WithContext(err, "get current user")
	}

	source := cfg.SourceDir()
	rules, err := sync.LoadRules(source, cfg.Sync.UseGitignore, cfg.Sync.Exclude)
	if err != nil {
		return nil, errors.WithContext(err, "load exclude rules")
	}

	id := sessionID(cfg)
	s := &Session{
		id:     id,
		cfg:    cfg,
		remote: rem,
		target: sync.TargetDir(cfg.WorkspaceRoot, user, id),
		syncer: sync.Syncer{
			Root:    source,
			Matcher: sync.CompileMatcher(rules),
			Limits: sync.Limits{
				MaxFileSize:  cfg.Sync.MaxFileSizeBytes(),
				MaxTotalSize: cfg.Sync.MaxSizeBytes(),
			},
			CachePath:  sync.CachePath(cfg.Root, id),
			Storage:    rem.Storage,
			StagingDir: sync.StagingDir(cfg.TmpRoot, id),
		},
	}

	execOpts := execution.DefaultOptions()
	execOpts.ClusterID = cfg.ClusterID
	execOpts.SessionID = id
	execOpts.CreateTimeout = cfg.Timeouts.CreateTimeout()
	execOpts.ExecTimeout = cfg.Timeouts.ExecuteTimeout()
	execOpts.PollTimeout = cfg.Timeouts.PollTimeout()
	execOpts.StabilizeDelay = cfg.Timeouts.StabilizeDelay()
	execOpts.AllowReconnect = cfg.AllowReconnect
	execOpts.Cluster = rem.Cluster
	execOpts.Clock = opts.Clock
	execOpts.Progress = opts.Progress
	execOpts.Setup = s.setup
	s.manager = execution.New(rem.Contexts, execOpts)

	log.WithFields(log.Fields{
		"session": id,
		"source":  source,
		"target":  s.target,
	}).Debug("Prepared session")
	return s, nil
}

func sessionID(cfg config.Config) string {
	switch {
	case cfg.SessionID != "":
		return sync.SanitizePathComponent(cfg.SessionID)
	case cfg.Ephemeral:
		return uuid.New().String()
	}
	return sync.DefaultSessionID(cfg.Root)
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Target returns the directory on the cluster that the project is synced
// to.
func (s *Session) Target() string {
	return s.target
}

// Source returns the local directory that's synced.
func (s *Session) Source() string {
	return s.syncer.Root
}

// Matcher returns the rules for the files that aren't synced.
func (s *Session) Matcher() *sync.Matcher {
	return s.syncer.Matcher
}

// Context returns the state of the session's execution context.
func (s *Session) Context() execution.Context {
	return s.manager.Context()
}

// Execute syncs any local changes, then runs `code` on the cluster.
func (s *Session) Execute(ctx context.Context, code string) (*execution.Command, error) {
	var entries []sync.FileEntry
	if s.cfg.Sync.Enabled {
		var err error
		if entries, err = s.syncer.Scan(); err != nil {
			return nil, errors.WithContext(err, "sync")
		}
	}

	created, err := s.manager.EnsureActive(ctx)
	if err != nil {
		return nil, err
	}

	if !created && s.cfg.Sync.Enabled {
		if _, err := s.deltaSync(ctx, entries); err != nil {
			return nil, err
		}
	}
	return s.manager.Submit(ctx, code)
}

// Sync brings the cluster's copy of the project up to date without running
// any code.
func (s *Session) Sync(ctx context.Context) (sync.ChangeSet, error) {
	if !s.cfg.Sync.Enabled {
		return sync.ChangeSet{}, errors.NewFriendlyError(
			"Sync is disabled in %s.", config.ProjectConfigName)
	}

	entries, err := s.syncer.Scan()
	if err != nil {
		return sync.ChangeSet{}, errors.WithContext(err, "sync")
	}

	created, err := s.manager.EnsureActive(ctx)
	if err != nil {
		return sync.ChangeSet{}, err
	}

	if created {
		return s.lastSync, nil
	}
	return s.deltaSync(ctx, entries)
}

// deltaSync syncs `entries` in the Active context. If the context turns out
// to have been lost, it's replaced, which syncs again as part of setup.
func (s *Session) deltaSync(ctx context.Context, entries []sync.FileEntry) (sync.ChangeSet, error) {
	changes, err := s.syncerFor(s.manager.Runner()).Apply(ctx, entries)
	if err == nil {
		return changes, nil
	}

	if !s.manager.IsInvalidation(err) {
		return sync.ChangeSet{}, errors.WithContext(err, "sync")
	}

	log.WithError(err).Warn("The execution context was lost while syncing. Reconnecting.")
	s.manager.MarkInvalid(err.Error())
	if _, err := s.manager.EnsureActive(ctx); err != nil {
		return sync.ChangeSet{}, err
	}
	return s.lastSync, nil
}

// setup runs whenever a new execution context is created. A new context
// doesn't have the project on its sys.path, and if the cluster restarted,
// the synced files may be gone as well.
func (s *Session) setup(ctx context.Context, runner remote.Runner, reason execution.Reason) error {
	if !s.cfg.Sync.Enabled {
		return nil
	}

	// The files are scanned again because they may have changed since the
	// caller checked them.
	syncer := s.syncerFor(runner)
	entries, err := syncer.Scan()
	if err != nil {
		return errors.WithContext(err, "sync")
	}

	exists, err := syncer.Materializer.Exists(ctx)
	if err != nil {
		return errors.WithContext(err, "check synced directory")
	}

	if !exists {
		log.WithField("target", s.target).WithField("reason", reason).
			Debug("Synced directory is missing. Syncing all files.")
		if err := syncer.Reset(); err != nil {
			return errors.WithContext(err, "reset sync cache")
		}
	}

	s.lastSync, err = syncer.Apply(ctx, entries)
	if err != nil {
		return errors.WithContext(err, "sync")
	}

	return errors.WithContext(syncer.Materializer.InjectPath(ctx), "add synced directory to path")
}

func (s *Session) syncerFor(runner remote.Runner) sync.Syncer {
	syncer := s.syncer
	syncer.Materializer = sync.Materializer{Runner: runner, Target: s.target}
	return syncer
}

// Close destroys the execution context. If the session is ephemeral, or
// configured to clean up on exit, the synced files are removed from the
// cluster as well, even if the context was lost. Failures are logged rather
// than returned because the session is ending regardless.
func (s *Session) Close(ctx context.Context) {
	cleanup := s.cfg.Sync.Enabled && (s.cfg.CleanupOnExit || s.cfg.Ephemeral)
	if cleanup {
		s.removeTarget(ctx)
	}

	s.manager.Destroy(ctx)

	if !cleanup {
		return
	}

	if err := s.remote.Storage.Delete(ctx, s.syncer.StagingDir, true); err != nil {
		log.WithError(err).WithField("dir", s.syncer.StagingDir).
			Warn("Failed to remove the staging directory")
	}

	if err := s.syncer.Reset(); err != nil {
		log.WithError(err).Warn("Failed to remove the sync cache")
	}
}

// removeTarget removes the synced directory through the execution context
// if it's Active, and through the workspace API otherwise. Nothing has been
// synced if no context was ever created.
func (s *Session) removeTarget(ctx context.Context) {
	state := s.manager.Context().State
	if state == execution.Uninitialized {
		return
	}

	logger := log.WithField("target", s.target)
	if state == execution.Active {
		materializer := sync.Materializer{Runner: s.manager.Runner(), Target: s.target}
		err := materializer.Cleanup(ctx)
		if err == nil {
			return
		}
		logger.WithError(err).Debug("Failed to remove the synced directory through " +
			"the execution context")
	}

	if s.remote.Workspace == nil {
		logger.Warn("Failed to remove the synced directory from the cluster")
		return
	}

	if err := s.remote.Workspace.Delete(ctx, s.target, true); err != nil {
		logger.WithError(err).Warn("Failed to remove the synced directory from the cluster")
	}
}
