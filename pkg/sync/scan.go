package sync

import (
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// Limits are the size limits enforced on a scan, in bytes. Zero means
// unlimited.
type Limits struct {
	MaxFileSize  int64
	MaxTotalSize int64
}

// FileEntry is a file that's eligible for syncing.
type FileEntry struct {
	// Path is the slash separated path relative to the project root.
	Path string
	Size int64
	Hash Digest
}

// Scan walks `root` and returns the files that aren't excluded by
// `matcher`, sorted by path. It fails without returning any files if a size
// limit is exceeded.
// Files that can't be read, that disappear during the scan, or that aren't
// regular files are skipped with a warning.
func Scan(root string, matcher *Matcher, limits Limits) ([]FileEntry, error) {
	var entries []FileEntry
	var total int64
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				if os.IsNotExist(err) {
					return errors.FileNotFound{Path: root}
				}
				return err
			}

			log.WithError(err).WithField("path", path).Warn("Skipping path that couldn't be read")
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "normalize path")
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if fi.IsDir() {
			if matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.Match(relPath, false) {
			return nil
		}

		if !fi.Mode().IsRegular() {
			log.WithField("path", relPath).Warn("Skipping file that isn't a regular file")
			return nil
		}

		if limits.MaxFileSize > 0 && fi.Size() > limits.MaxFileSize {
			return errors.FileSizeError{Path: relPath, Size: fi.Size(), Limit: limits.MaxFileSize}
		}

		hash, err := HashFile(path)
		if err != nil {
			log.WithError(err).WithField("path", relPath).Warn("Skipping file that couldn't be read")
			return nil
		}

		entries = append(entries, FileEntry{Path: relPath, Size: fi.Size(), Hash: hash})
		total += fi.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limits.MaxTotalSize > 0 && total > limits.MaxTotalSize {
		return nil, errors.FileSizeError{Total: total, Limit: limits.MaxTotalSize}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}
