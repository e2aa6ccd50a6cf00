package sync

import (
	"context"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// Syncer syncs a local project into the cluster.
type Syncer struct {
	Root    string
	Matcher *Matcher
	Limits  Limits

	// CachePath is where the record of the last successful sync is kept.
	CachePath string

	Storage      remote.Storage
	StagingDir   string
	Materializer Materializer

	Log *logrus.Logger
}

// SyncOnce brings the remote directory up to date with the project. It
// returns the changes that were synced. Nothing is sent over the network if
// the project hasn't changed since the last sync.
func (s Syncer) SyncOnce(ctx context.Context) (ChangeSet, error) {
	entries, err := s.Scan()
	if err != nil {
		return ChangeSet{}, err
	}
	return s.Apply(ctx, entries)
}

// Scan lists the files to sync, and enforces the size limits. It doesn't
// touch the network, so a project that's too large is rejected before
// anything is created on the cluster.
func (s Syncer) Scan() ([]FileEntry, error) {
	entries, err := Scan(s.Root, s.Matcher, s.Limits)
	if err != nil {
		return nil, errors.WithContext(err, "scan")
	}
	return entries, nil
}

// Apply syncs the files from a previous Scan.
func (s Syncer) Apply(ctx context.Context, entries []FileEntry) (ChangeSet, error) {
	cache := LoadCache(s.CachePath)
	changes := cache.Diff(entries)
	if changes.Empty() {
		s.logger().WithField("files", len(entries)).Debug("Already synced.")
		return changes, nil
	}

	archive, err := BuildArchive(s.Root, changes, len(cache) == 0)
	if err != nil {
		return ChangeSet{}, errors.WithContext(err, "build archive")
	}

	dest := path.Join(s.StagingDir, archive.Name)
	if err := Upload(ctx, s.Storage, archive, dest); err != nil {
		return ChangeSet{}, errors.WithContext(err, "upload archive")
	}

	err = s.Materializer.Materialize(ctx, s.Storage.Locate(dest), archive)
	deleteStaged(s.Storage, dest)
	if err != nil {
		return ChangeSet{}, errors.WithContext(err, "materialize")
	}

	if err := cache.Commit(s.CachePath, entries); err != nil {
		return ChangeSet{}, errors.WithContext(err, "commit sync cache")
	}

	s.logger().WithFields(logrus.Fields{
		"archive": archive.Name,
		"bytes":   archive.Size(),
		"full":    archive.Full,
	}).Infof("Synced %d files, removed %d.", len(changes.Added)+len(changes.Modified),
		len(changes.Removed))
	return changes, nil
}

// Reset forgets what was synced so that the next sync transfers every file
// and replaces the remote directory.
func (s Syncer) Reset() error {
	return ResetCache(s.CachePath)
}

func (s Syncer) logger() *logrus.Logger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
