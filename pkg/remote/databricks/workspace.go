package databricks

import (
	"context"
	"strings"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// workspaceMount is where the workspace file tree is mounted on the driver.
// The workspace API addresses files relative to it.
const workspaceMount = "/Workspace"

// Workspace manages files in the workspace file tree through the workspace
// API, which works without an execution context.
type Workspace struct {
	client *Client
}

var _ remote.WorkspaceAPI = Workspace{}

// Workspace returns access to the workspace file tree.
func (c *Client) Workspace() Workspace {
	return Workspace{client: c}
}

// Delete removes a workspace file or directory. `p` may be given either as
// a path on the driver, or relative to the workspace root.
func (ws Workspace) Delete(ctx context.Context, p string, recursive bool) error {
	req := struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}{workspacePath(p), recursive}
	err := ws.client.post(ctx, "/api/2.0/workspace/delete", req, nil)
	if err != nil && !IsNotFound(err) {
		return errors.WithContext(err, "delete workspace path")
	}
	return nil
}

func workspacePath(p string) string {
	if p == workspaceMount {
		return "/"
	}
	if strings.HasPrefix(p, workspaceMount+"/") {
		return strings.TrimPrefix(p, workspaceMount)
	}
	return p
}
