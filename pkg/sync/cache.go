package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// cacheVersion is bumped whenever the format of the cache file changes.
// Caches with a different version are discarded.
const cacheVersion = 1

// Cache maps the paths of the files that were last synced to their
// digests.
type Cache map[string]Digest

type cacheFile struct {
	Version int               `json:"version"`
	Files   map[string]Digest `json:"files"`
}

// ChangeSet is the difference between a scan and the cache. Each list is
// sorted by path.
type ChangeSet struct {
	Added     []FileEntry
	Modified  []FileEntry
	Unchanged []FileEntry
	Removed   []string
}

// Empty returns whether there's nothing to sync.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Removed) == 0
}

// Changed returns the files whose contents need to be transferred.
func (cs ChangeSet) Changed() []FileEntry {
	changed := append(append([]FileEntry{}, cs.Added...), cs.Modified...)
	sort.Slice(changed, func(i, j int) bool {
		return changed[i].Path < changed[j].Path
	})
	return changed
}

// CachePath returns where the cache for the given session is stored.
func CachePath(root, sessionID string) string {
	return filepath.Join(root, MetadataDir, "cache-"+sessionID+".json")
}

// LoadCache reads the cache at `path`. A missing or corrupt cache is
// treated as empty so that everything is synced.
func LoadCache(path string) Cache {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn(
				"Failed to read sync cache. All files will be synced.")
		}
		return Cache{}
	}

	var parsed cacheFile
	if err := json.Unmarshal(contents, &parsed); err != nil {
		log.WithError(err).WithField("path", path).Warn(
			"Sync cache is corrupt. All files will be synced.")
		return Cache{}
	}

	if parsed.Version != cacheVersion || parsed.Files == nil {
		log.WithField("path", path).Warn(
			"Sync cache has an unknown format. All files will be synced.")
		return Cache{}
	}
	return Cache(parsed.Files)
}

// Diff classifies `entries`, which must be sorted by path, against the
// cache.
func (c Cache) Diff(entries []FileEntry) (cs ChangeSet) {
	current := map[string]struct{}{}
	for _, entry := range entries {
		current[entry.Path] = struct{}{}

		prev, ok := c[entry.Path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, entry)
		case prev != entry.Hash:
			cs.Modified = append(cs.Modified, entry)
		default:
			cs.Unchanged = append(cs.Unchanged, entry)
		}
	}

	for path := range c {
		if _, ok := current[path]; !ok {
			cs.Removed = append(cs.Removed, path)
		}
	}
	sort.Strings(cs.Removed)
	return cs
}

// Commit records `entries` as synced, replacing the cache both in memory
// and at `path`. It should only be called once the sync has been confirmed
// end to end.
func (c Cache) Commit(path string, entries []FileEntry) error {
	next := map[string]Digest{}
	for _, entry := range entries {
		next[entry.Path] = entry.Hash
	}

	contents, err := json.MarshalIndent(cacheFile{Version: cacheVersion, Files: next}, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "create cache directory")
	}

	// Write to a temporary file first so that a crash mid-write can't leave
	// a truncated cache behind.
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(fs, tmpPath, contents, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return errors.WithContext(err, "rename")
	}

	for key := range c {
		delete(c, key)
	}
	for key, digest := range next {
		c[key] = digest
	}
	return nil
}

// ResetCache removes the cache at `path` so that the next sync transfers
// every file.
func ResetCache(path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "remove cache")
	}
	return nil
}
