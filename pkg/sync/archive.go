package sync

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// Entries carry a fixed mode and timestamp so that the archive only depends
// on the contents of the files.
const archiveFileMode = 0644

var archiveModTime = time.Unix(0, 0)

// Archive is a gzipped tarball of the files in a ChangeSet. It only lives
// for the duration of a single sync.
type Archive struct {
	// Name is derived from the archive's contents.
	Name    string
	Data    []byte
	Digest  Digest
	Changes ChangeSet

	// Full is set when the archive holds every file in the project, and so
	// should replace the remote directory rather than update it.
	Full bool
}

// Reader returns a seekable reader over the archive's contents.
func (a *Archive) Reader() *bytes.Reader {
	return bytes.NewReader(a.Data)
}

// Size returns the size of the archive in bytes.
func (a *Archive) Size() int64 {
	return int64(len(a.Data))
}

// BuildArchive packages the added and modified files in `changes` into an
// archive, using their paths relative to `root` as entry names. It returns
// nil if there's nothing to sync.
// Files are hashed again as they're copied, and ErrFileChanged is returned
// if any of them no longer match the scan.
func BuildArchive(root string, changes ChangeSet, full bool) (*Archive, error) {
	if changes.Empty() {
		return nil, nil
	}

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for _, entry := range changes.Changed() {
		if err := addFile(tw, root, entry); err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("add %s", entry.Path))
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errors.WithContext(err, "close tar")
	}
	if err := gzw.Close(); err != nil {
		return nil, errors.WithContext(err, "close gzip")
	}

	digest := HashBytes(buf.Bytes())
	return &Archive{
		Name:    fmt.Sprintf("archive-%s.tar.gz", digest),
		Data:    buf.Bytes(),
		Digest:  digest,
		Changes: changes,
		Full:    full,
	}, nil
}

func addFile(tw *tar.Writer, root string, entry FileEntry) error {
	f, err := fs.Open(filepath.Join(root, filepath.FromSlash(entry.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ErrFileChanged
		}
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}
	if fi.Size() != entry.Size {
		return errors.ErrFileChanged
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entry.Path,
		Size:     entry.Size,
		Mode:     archiveFileMode,
		ModTime:  archiveModTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.WithContext(err, "write header")
	}

	hasher := newHasher()
	n, err := io.Copy(io.MultiWriter(tw, hasher), io.LimitReader(f, entry.Size))
	if err != nil {
		return errors.WithContext(err, "copy")
	}
	if n != entry.Size || sum(hasher) != entry.Hash {
		return errors.ErrFileChanged
	}
	return nil
}
