package sync

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// defaultChunkSize is used if the storage doesn't report a chunk size.
const defaultChunkSize = 1024 * 1024

// cleanupTimeout bounds the requests that clean up after a failed upload.
// They use their own context since the upload's context may be the reason
// it failed.
const cleanupTimeout = 30 * time.Second

// Upload writes `archive` to `dest` in `storage`, one chunk at a time. If
// the upload fails at any point, the partially written object is removed and
// a TransferError is returned.
func Upload(ctx context.Context, storage remote.Storage, archive *Archive, dest string) error {
	upload, err := storage.BeginUpload(ctx, dest)
	if err != nil {
		return errors.TransferError{Stage: "begin upload", Err: err}
	}

	chunkSize := storage.ChunkSize()
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var chunks int
	for offset := 0; offset < len(archive.Data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(archive.Data) {
			end = len(archive.Data)
		}

		if err := upload.PutChunk(ctx, int64(offset), archive.Data[offset:end]); err != nil {
			abortUpload(upload, dest)
			return errors.TransferError{
				Stage: fmt.Sprintf("upload chunk at offset %d", offset),
				Err:   err,
			}
		}
		chunks++
	}

	if err := upload.Complete(ctx); err != nil {
		abortUpload(upload, dest)
		return errors.TransferError{Stage: "complete upload", Err: err}
	}

	// Check the size of the finished object so that a silently truncated
	// upload is never extracted.
	size, err := storage.Stat(ctx, dest)
	if err == nil && size != archive.Size() {
		err = fmt.Errorf("uploaded %d bytes, but remote object has %d", archive.Size(), size)
	}
	if err != nil {
		deleteStaged(storage, dest)
		return errors.TransferError{Stage: "verify upload", Err: err}
	}

	log.WithFields(log.Fields{
		"path":   dest,
		"bytes":  archive.Size(),
		"chunks": chunks,
	}).Debug("Uploaded sync archive")
	return nil
}

func abortUpload(upload remote.Upload, dest string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := upload.Abort(ctx); err != nil {
		log.WithError(err).WithField("path", dest).Warn(
			"Failed to clean up partial upload. It won't be used by later syncs.")
	}
}

func deleteStaged(storage remote.Storage, dest string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := storage.Delete(ctx, dest, false); err != nil {
		log.WithError(err).WithField("path", dest).Warn(
			"Failed to remove staged archive. It won't be used by later syncs.")
	}
}
