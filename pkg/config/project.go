package config

import (
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/errors"
)

const (
	// ProjectConfigName is the name of the project config file. It's looked
	// up in the working directory and each of its parents.
	ProjectConfigName = ".dbkernel.yaml"

	// InitialProjectConfigVersion is the first version of the project config.
	// Config files that do not specify a version will default to this
	// version.
	InitialProjectConfigVersion = "v1alpha1"

	// SupportedProjectConfigVersion is the supported version of the project
	// config of the current binary.
	SupportedProjectConfigVersion = "v1alpha1"

	// StorageDBFS stages sync archives on DBFS.
	StorageDBFS = "dbfs"

	// StorageS3 stages sync archives in an S3 bucket that the cluster can
	// read from.
	StorageS3 = "s3"

	defaultTmpRoot       = "/tmp/dbkernel"
	defaultWorkspaceRoot = "/Workspace/Users"
)

// DefaultExcludes are the exclude patterns used when the project doesn't set
// any.
var DefaultExcludes = []string{".git", "__pycache__", ".venv", "*.pyc", ".pytest_cache"}

// Project contains the per-project configuration.
type Project struct {
	Version        string   `json:"version,omitempty"`
	ClusterID      string   `json:"cluster_id,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	WorkspaceRoot  string   `json:"workspace_root,omitempty"`
	TmpRoot        string   `json:"tmp_root,omitempty"`
	CleanupOnExit  bool     `json:"cleanup_on_exit,omitempty"`
	Ephemeral      bool     `json:"ephemeral,omitempty"`
	AllowReconnect bool     `json:"allow_reconnect"`
	Sync           Sync     `json:"sync"`
	Storage        Storage  `json:"storage"`
	Timeouts       Timeouts `json:"timeouts"`

	// Only populated and consumed by dbkernel. Never set by user.
	path string
}

// Sync configures which files are synced to the cluster.
type Sync struct {
	Enabled       bool     `json:"enabled"`
	Source        string   `json:"source,omitempty"`
	Exclude       []string `json:"exclude"`
	UseGitignore  bool     `json:"use_gitignore"`
	MaxSizeMB     int64    `json:"max_size_mb,omitempty"`
	MaxFileSizeMB int64    `json:"max_file_size_mb,omitempty"`
}

// Storage configures where sync archives are staged before they're
// extracted on the cluster.
type Storage struct {
	Type   string `json:"type,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
}

// Timeouts are in whole seconds. Zero selects the default, except for
// Execute where zero means there's no limit.
type Timeouts struct {
	Create    int `json:"create,omitempty"`
	Execute   int `json:"execute,omitempty"`
	Poll      int `json:"poll,omitempty"`
	Stabilize int `json:"stabilize,omitempty"`
}

func (c Project) getVersion() string {
	return c.Version
}

// GetPath returns the filepath that the project was parsed from. It's empty
// if the defaults are in use. A getter method is used rather than making
// the field public so that it can't get set by the yaml Unmarshalling.
func (c Project) GetPath() string {
	return c.path
}

// DefaultProject returns the configuration used when a field isn't set.
func DefaultProject() Project {
	return Project{
		Version:        InitialProjectConfigVersion,
		WorkspaceRoot:  defaultWorkspaceRoot,
		TmpRoot:        defaultTmpRoot,
		AllowReconnect: true,
		Sync: Sync{
			Enabled:      true,
			Source:       ".",
			Exclude:      append([]string{}, DefaultExcludes...),
			UseGitignore: true,
		},
		Storage: Storage{Type: StorageDBFS},
	}
}

// ParseProject parses the project config at `path`.
func ParseProject(path string) (Project, error) {
	config := DefaultProject()
	config.path = path
	if err := parseConfig(path, &config, SupportedProjectConfigVersion); err != nil {
		return Project{}, errors.WithContext(err, "parse")
	}
	return config, nil
}

// FindProjectConfig returns the path to the closest project config in `dir`
// or its parents.
func FindProjectConfig(dir string) (string, bool) {
	dir = filepath.Clean(dir)
	for {
		path := filepath.Join(dir, ProjectConfigName)
		if fi, err := fs.Stat(path); err == nil && !fi.IsDir() {
			return path, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// CreateTimeout is the maximum time to wait for a new execution context.
func (t Timeouts) CreateTimeout() time.Duration {
	return seconds(t.Create, 120*time.Second)
}

// ExecuteTimeout is the maximum time a command may run. Zero is unlimited.
func (t Timeouts) ExecuteTimeout() time.Duration {
	return seconds(t.Execute, 0)
}

// PollTimeout bounds each individual status request.
func (t Timeouts) PollTimeout() time.Duration {
	return seconds(t.Poll, 30*time.Second)
}

// StabilizeDelay is how long to wait before reconnecting.
func (t Timeouts) StabilizeDelay() time.Duration {
	return seconds(t.Stabilize, 2*time.Second)
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// MaxSizeBytes returns the limit on the total size of the synced files. Zero
// is unlimited.
func (s Sync) MaxSizeBytes() int64 {
	return s.MaxSizeMB * 1024 * 1024
}

// MaxFileSizeBytes returns the limit on the size of any single synced file.
// Zero is unlimited.
func (s Sync) MaxFileSizeBytes() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

func logDefaultProject(dir string) {
	log.WithField("dir", dir).Debugf("No %s found. Using the defaults.", ProjectConfigName)
}
