package watch

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/fswatch"
	"github.com/sidkik/dbkernel/pkg/session"
	"github.com/sidkik/dbkernel/pkg/sync"
)

type fakeSyncer struct {
	calls   chan struct{}
	results []error
}

func (s *fakeSyncer) Sync(context.Context) error {
	var err error
	if len(s.results) > 0 {
		err, s.results = s.results[0], s.results[1:]
	}
	s.calls <- struct{}{}
	return err
}

func TestLoop(t *testing.T) {
	hook := logrusTest.NewGlobal()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan struct{}, 1)
	poll := make(chan time.Time, 1)
	s := &fakeSyncer{
		calls:   make(chan struct{}),
		results: []error{nil, errors.New("upload failed")},
	}

	done := make(chan error)
	go func() { done <- loop(ctx, s, updates, poll) }()

	// The first sync happens right away.
	<-s.calls

	// File changes and the poll both trigger a sync. A failure doesn't stop
	// the loop.
	updates <- struct{}{}
	<-s.calls
	poll <- time.Now()
	<-s.calls

	// A closed watcher leaves only the poll.
	close(updates)
	poll <- time.Now()
	<-s.calls

	cancel()
	assert.NoError(t, <-done)

	var failures int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Sync failed" {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestLoopInitialSyncFails(t *testing.T) {
	s := &fakeSyncer{
		calls:   make(chan struct{}, 1),
		results: []error{errors.NewFriendlyError("Sync is disabled.")},
	}
	err := loop(context.Background(), s, nil, nil)
	assert.EqualError(t, err, "Sync is disabled.")
}

func TestWatchFallback(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expErr     string
		expWarning bool
	}{
		{
			name:       "TooManyFiles",
			err:        errors.WithContext(errors.New("too many open files"), "create watcher"),
			expWarning: true,
		},
		{
			name:   "MissingSource",
			err:    errors.WithContext(errors.FileNotFound{Path: "/repo/src"}, "get paths"),
			expErr: "Failed to watch files for syncing.\n\"/repo/src\" doesn't exist.\n\n" +
				"Is the sync source in the project config correct?",
		},
		{
			name:   "Other",
			err:    errors.New("permission denied"),
			expErr: "watch files: permission denied",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			hook := logrusTest.NewGlobal()
			watchFiles = func(*session.Session) (*fswatch.Watcher, error) {
				return nil, test.err
			}

			watcher, err := watch(nil)
			assert.Nil(t, watcher)
			if test.expErr != "" {
				assert.EqualError(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, test.expWarning, len(hook.AllEntries()) > 0)
		})
	}
}

func TestRunClosesWatcher(t *testing.T) {
	dir, err := ioutil.TempDir("", "dbkernel-watch")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	watcher, err := fswatch.Watch(dir, sync.CompileMatcher(nil))
	require.NoError(t, err)
	watchFiles = func(*session.Session) (*fswatch.Watcher, error) {
		return watcher, nil
	}

	s := &fakeSyncer{calls: make(chan struct{}, 1)}
	newSyncer = func(*session.Session) syncer {
		return s
	}

	// The session is interrupted right after the first sync.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runSession = func(fn func(context.Context, *session.Session) error) error {
		return fn(ctx, nil)
	}

	require.NoError(t, run())
	<-s.calls

	closed := make(chan struct{})
	go func() {
		for range watcher.Updates {
		}
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("the watcher wasn't closed")
	}
}
