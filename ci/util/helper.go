package util

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/google/uuid"

	cliUtil "github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/pkg/config"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote/databricks"
	"github.com/sidkik/dbkernel/pkg/session"
)

// TestHelper contains methods commonly used during integration tests. Each
// helper has its own project directory, and its own session on the cluster.
type TestHelper struct {
	Root      string
	SessionID string
	Config    config.Config
}

// NewTestHelper creates a project in a temporary directory that's synced to
// the cluster named by the DATABRICKS_CLUSTER_ID environment variable.
func NewTestHelper(project config.Project) (*TestHelper, error) {
	root, err := ioutil.TempDir("", "dbkernel-ci")
	if err != nil {
		return nil, errors.WithContext(err, "make project dir")
	}

	project.Version = config.SupportedProjectConfigVersion
	if project.SessionID == "" {
		project.SessionID = "ci-" + uuid.New().String()
	}

	projectBytes, err := yaml.Marshal(project)
	if err != nil {
		return nil, errors.WithContext(err, "marshal project config")
	}

	if err := ioutil.WriteFile(filepath.Join(root, config.ProjectConfigName), projectBytes, 0644); err != nil {
		return nil, errors.WithContext(err, "write project config")
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, errors.WithContext(err, "load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &TestHelper{Root: root, SessionID: project.SessionID, Config: cfg}, nil
}

// Run runs the given dbkernel command in the project directory, and returns
// its stdout.
func (helper *TestHelper) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "dbkernel", args...)
	cmd.Dir = helper.Root

	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("dbkernel %s (%s): stderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}
	return string(out), nil
}

// Exec runs `code` with `dbkernel exec`.
func (helper *TestHelper) Exec(ctx context.Context, code string) (string, error) {
	return helper.Run(ctx, "exec", "-c", code)
}

// Session starts a session in this process, rather than through the CLI.
func (helper *TestHelper) Session(ctx context.Context) (*session.Session, error) {
	return cliUtil.NewSession(ctx, helper.Config)
}

// Client returns a client for the workspace that the project syncs to.
func (helper *TestHelper) Client() *databricks.Client {
	return databricks.New(helper.Config.Host, helper.Config.Token)
}

// WriteFile writes a file relative to the project root.
func (helper *TestHelper) WriteFile(path, contents string) error {
	path = filepath.Join(helper.Root, path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(path, []byte(contents), 0644)
}

// RemoveFile removes a file relative to the project root.
func (helper *TestHelper) RemoveFile(path string) error {
	return os.Remove(filepath.Join(helper.Root, path))
}

// Cleanup removes the synced files from the cluster, and then the local
// project.
func (helper *TestHelper) Cleanup(ctx context.Context) error {
	helper.Config.CleanupOnExit = true
	s, err := helper.Session(ctx)
	if err != nil {
		return errors.WithContext(err, "start session")
	}

	// The synced directory can only be removed from a live context.
	if _, err := s.Execute(ctx, "pass"); err != nil {
		return errors.WithContext(err, "create context")
	}
	s.Close(ctx)
	return os.RemoveAll(helper.Root)
}
