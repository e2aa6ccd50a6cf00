package watch

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/fswatch"
	"github.com/sidkik/dbkernel/pkg/session"
)

// The interval to poll the filesystem for any changes that need to be synced.
const pollSeconds = 15

// Mocked for unit testing.
var (
	runSession = util.WithSession
	watchFiles = func(s *session.Session) (*fswatch.Watcher, error) {
		return fswatch.Watch(s.Source(), s.Matcher())
	}
	newSyncer = func(s *session.Session) syncer {
		return sessionSyncer{s}
	}
)

// New creates a new `watch` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the cluster's copy of the project in sync",
		Long: "Sync the project to the cluster whenever a file changes, " +
			"until interrupted.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

type syncer interface {
	Sync(context.Context) error
}

func run() error {
	return runSession(func(ctx context.Context, s *session.Session) error {
		watcher, err := watch(s)
		if err != nil {
			return err
		}

		var updates <-chan struct{}
		if watcher != nil {
			defer func() {
				if err := watcher.Close(); err != nil {
					log.WithError(err).Warn("Failed to close file watcher")
				}
			}()
			updates = watcher.Updates
		}

		ticker := time.NewTicker(pollSeconds * time.Second)
		defer ticker.Stop()
		return loop(ctx, newSyncer(s), updates, ticker.C)
	})
}

// watch starts watching the project for changes. The watcher is nil if the
// files can't be watched, so that only the periodic poll triggers syncs.
func watch(s *session.Session) (*fswatch.Watcher, error) {
	watcher, err := watchFiles(s)
	if err == nil {
		return watcher, nil
	}

	rootCause := errors.RootCause(err)
	if dneErr, ok := rootCause.(errors.FileNotFound); ok {
		return nil, errors.NewFriendlyError(
			"Failed to watch files for syncing.\n"+
				"%q doesn't exist.\n\n"+
				"Is the sync source in the project config correct?", dneErr.Path)
	}

	if !strings.Contains(rootCause.Error(), "too many open files") &&
		!strings.Contains(rootCause.Error(), "no space left on device") {
		return nil, errors.WithContext(err, "watch files")
	}

	log.Warnf("Too many files to automatically watch for changes. "+
		"dbkernel will poll for changes every %d seconds instead.", pollSeconds)
	log.Warn("Raise fs.inotify.max_user_watches, or exclude large " +
		"directories from the sync, to sync on every change.")
	return nil, nil
}

// loop syncs once immediately, and then whenever a file changes or the poll
// interval passes. Only the first sync's failure is returned. Later failures
// are logged, and retried on the next trigger.
func loop(ctx context.Context, s syncer, updates <-chan struct{}, poll <-chan time.Time) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	log.Info("Watching for changes. Press Ctrl-C to stop.")

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
		case <-poll:
		case <-ctx.Done():
			return nil
		}

		if err := s.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("Sync failed")
		}
	}
}

type sessionSyncer struct {
	session *session.Session
}

func (s sessionSyncer) Sync(ctx context.Context) error {
	_, err := s.session.Sync(ctx)
	return err
}
