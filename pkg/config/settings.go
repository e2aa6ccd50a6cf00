package config

import (
	"path/filepath"
	"strings"

	"github.com/sidkik/dbkernel/pkg/errors"
)

const (
	// HostEnvKey overrides the workspace host in the user config.
	HostEnvKey = "DATABRICKS_HOST"

	// TokenEnvKey overrides the access token in the user config.
	TokenEnvKey = "DATABRICKS_TOKEN"

	// ClusterEnvKey sets the cluster when the project config doesn't.
	ClusterEnvKey = "DATABRICKS_CLUSTER_ID"
)

// Config is the fully resolved configuration for a session.
type Config struct {
	Project

	Host  string
	Token string

	// Root is the absolute path of the project. It's the directory holding
	// the project config, or the working directory if there isn't one.
	Root string
}

// Load resolves the configuration for a session started in `dir`.
func Load(dir string) (Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return Config{}, errors.WithContext(err, "resolve working directory")
	}

	cfg := Config{Project: DefaultProject(), Root: dir}
	if path, ok := FindProjectConfig(dir); ok {
		cfg.Project, err = ParseProject(path)
		if err != nil {
			return Config{}, errors.WithContext(err, "project config")
		}
		cfg.Root = filepath.Dir(path)
	} else {
		logDefaultProject(dir)
	}

	user, err := ParseUser()
	if err != nil {
		return Config{}, errors.WithContext(err, "user config")
	}
	cfg.Host = user.Host
	cfg.Token = user.Token

	if host := getenv(HostEnvKey); host != "" {
		cfg.Host = host
	}
	if token := getenv(TokenEnvKey); token != "" {
		cfg.Token = token
	}
	if cfg.ClusterID == "" {
		cfg.ClusterID = getenv(ClusterEnvKey)
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	return cfg, nil
}

// Validate checks that everything required to reach the cluster is set.
func (cfg Config) Validate() error {
	if cfg.Host == "" {
		return errors.ConfigurationError{Field: "host",
			Detail: "not set. Run `dbkernel config` or set " + HostEnvKey + "."}
	}
	if !strings.HasPrefix(cfg.Host, "https://") && !strings.HasPrefix(cfg.Host, "http://") {
		return errors.ConfigurationError{Field: "host",
			Detail: "must be a URL such as https://example.cloud.databricks.com"}
	}
	if cfg.Token == "" {
		return errors.ConfigurationError{Field: "token",
			Detail: "not set. Run `dbkernel config` or set " + TokenEnvKey + "."}
	}
	if cfg.ClusterID == "" {
		return errors.ConfigurationError{Field: "cluster_id",
			Detail: "not set in " + ProjectConfigName + " or " + ClusterEnvKey + "."}
	}

	switch cfg.Storage.Type {
	case StorageDBFS:
	case StorageS3:
		if cfg.Storage.Bucket == "" {
			return errors.ConfigurationError{Field: "storage.bucket",
				Detail: "required when storage.type is s3"}
		}
	default:
		return errors.ConfigurationError{Field: "storage.type",
			Detail: "must be dbfs or s3, got " + cfg.Storage.Type}
	}

	if cfg.Sync.MaxSizeMB < 0 || cfg.Sync.MaxFileSizeMB < 0 {
		return errors.ConfigurationError{Field: "sync",
			Detail: "size limits must not be negative"}
	}
	return nil
}

// SourceDir returns the absolute path of the directory that's synced.
func (cfg Config) SourceDir() string {
	if filepath.IsAbs(cfg.Sync.Source) {
		return cfg.Sync.Source
	}
	return filepath.Join(cfg.Root, cfg.Sync.Source)
}
