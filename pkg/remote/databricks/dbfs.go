package databricks

import (
	"context"
	"encoding/base64"
	"net/url"
	"path"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// dbfsBlockSize is the largest block accepted by add-block.
const dbfsBlockSize = 1 << 20

// DBFS stages objects in the workspace's DBFS root, which is mounted at
// /dbfs on the driver.
type DBFS struct {
	client *Client
}

var _ remote.Storage = DBFS{}

// DBFS returns staging storage backed by the workspace's DBFS root.
func (c *Client) DBFS() DBFS {
	return DBFS{client: c}
}

type dbfsUpload struct {
	client  *Client
	path    string
	handle  int64
	written int64
}

// BeginUpload opens a DBFS file for streaming writes.
func (fs DBFS) BeginUpload(ctx context.Context, p string) (remote.Upload, error) {
	mkdirs := map[string]string{"path": path.Dir(p)}
	if err := fs.client.post(ctx, "/api/2.0/dbfs/mkdirs", mkdirs, nil); err != nil {
		return nil, errors.WithContext(err, "make staging directory")
	}

	req := struct {
		Path      string `json:"path"`
		Overwrite bool   `json:"overwrite"`
	}{p, true}
	var resp struct {
		Handle int64 `json:"handle"`
	}
	if err := fs.client.post(ctx, "/api/2.0/dbfs/create", req, &resp); err != nil {
		return nil, errors.WithContext(err, "create file")
	}
	return &dbfsUpload{client: fs.client, path: p, handle: resp.Handle}, nil
}

// Stat returns the size of a DBFS file.
func (fs DBFS) Stat(ctx context.Context, p string) (int64, error) {
	query := url.Values{}
	query.Set("path", p)

	var resp struct {
		IsDir    bool  `json:"is_dir"`
		FileSize int64 `json:"file_size"`
	}
	if err := fs.client.get(ctx, "/api/2.0/dbfs/get-status", query, &resp); err != nil {
		if IsNotFound(err) {
			return 0, errors.FileNotFound{Path: p}
		}
		return 0, errors.WithContext(err, "get file status")
	}

	if resp.IsDir {
		return 0, errors.New("%s is a directory", p)
	}
	return resp.FileSize, nil
}

// Delete removes a DBFS file or directory. Deleting a path that doesn't
// exist isn't an error.
func (fs DBFS) Delete(ctx context.Context, p string, recursive bool) error {
	req := struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}{p, recursive}
	err := fs.client.post(ctx, "/api/2.0/dbfs/delete", req, nil)
	if err != nil && !IsNotFound(err) {
		return errors.WithContext(err, "delete")
	}
	return nil
}

// ChunkSize returns the largest block DBFS accepts in one request.
func (fs DBFS) ChunkSize() int {
	return dbfsBlockSize
}

// Locate returns the DBFS URI of `p`, and its path on the driver's FUSE
// mount.
func (fs DBFS) Locate(p string) remote.Location {
	return remote.Location{
		URI:       "dbfs:" + p,
		LocalPath: path.Join("/dbfs", p),
	}
}

func (u *dbfsUpload) PutChunk(ctx context.Context, offset int64, data []byte) error {
	if offset != u.written {
		return errors.New("chunk at offset %d is out of order: %d bytes written",
			offset, u.written)
	}

	req := struct {
		Handle int64  `json:"handle"`
		Data   string `json:"data"`
	}{u.handle, base64.StdEncoding.EncodeToString(data)}
	if err := u.client.post(ctx, "/api/2.0/dbfs/add-block", req, nil); err != nil {
		return errors.WithContext(err, "add block")
	}

	u.written += int64(len(data))
	return nil
}

func (u *dbfsUpload) Complete(ctx context.Context) error {
	return errors.WithContext(u.close(ctx), "close file")
}

// Abort closes the handle and removes the partial file.
func (u *dbfsUpload) Abort(ctx context.Context) error {
	if err := u.close(ctx); err != nil {
		return errors.WithContext(err, "close file")
	}
	return DBFS{client: u.client}.Delete(ctx, u.path, false)
}

func (u *dbfsUpload) close(ctx context.Context) error {
	req := map[string]int64{"handle": u.handle}
	return u.client.post(ctx, "/api/2.0/dbfs/close", req, nil)
}
