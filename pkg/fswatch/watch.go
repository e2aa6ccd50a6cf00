// Package fswatch notifies the CLI when files in the project change so that
// they can be synced without waiting for the next command.
package fswatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/sync"
)

var fs = afero.NewOsFs()

// Watcher watches a project directory recursively. Excluded paths are
// neither watched nor reported.
type Watcher struct {
	// Updates receives a value whenever a file changes. Bursts of changes
	// are combined into a single value.
	Updates chan struct{}

	root    string
	matcher *sync.Matcher
	watcher *fsnotify.Watcher
}

// Watch starts watching `root` and each of its subdirectories that isn't
// excluded by `matcher`. Directories created later are watched as well.
func Watch(root string, matcher *sync.Matcher) (*Watcher, error) {
	dirs, err := getDirsToWatch(root, matcher)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", dir))
		}
	}

	w := &Watcher{root: root, matcher: matcher, watcher: watcher}
	w.Updates = combineUpdates(watcher.Events, w.handle)
	go w.logErrors()
	return w, nil
}

// Close stops watching. Updates is closed once the pending events are
// drained.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// handle returns whether `event` should trigger a sync. New directories are
// added to the watch.
func (w *Watcher) handle(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)

	if event.Op&fsnotify.Create != 0 {
		if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
			if w.matcher.Match(rel, true) {
				return false
			}
			w.watchNewDir(event.Name)
			return true
		}
	}

	// Permission changes don't change what's synced.
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !w.matcher.Excluded(rel)
}

func (w *Watcher) watchNewDir(dir string) {
	dirs, err := getChildDirs(w.root, dir, w.matcher)
	if err != nil {
		log.WithError(err).WithField("dir", dir).Warn("Failed to list new directory")
	}

	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).
				Warn("Failed to watch new directory. Changes to it won't trigger a sync.")
		}
	}
}

func (w *Watcher) logErrors() {
	for err := range w.watcher.Errors {
		log.WithError(err).Debug("File watcher error")
	}
}

func combineUpdates(updates <-chan fsnotify.Event, filter func(fsnotify.Event) bool) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for event := range updates {
			if !filter(event) {
				continue
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

func getDirsToWatch(root string, matcher *sync.Matcher) ([]string, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.New("%s is not a directory", root)
	}
	return getChildDirs(root, root, matcher)
}

// getChildDirs returns `dir` and its subdirectories, skipping the ones that
// are excluded. Because fsnotify doesn't watch directories recursively, each
// one is watched individually.
func getChildDirs(root, dir string, matcher *sync.Matcher) (dirs []string, err error) {
	err = afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "normalize path")
		}

		if rel != "." && matcher.Match(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}

		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
