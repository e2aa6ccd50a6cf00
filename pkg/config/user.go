package config

import (
	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/dbkernel/pkg/errors"
)

const (
	// UserConfigPath is the default path to the dbkernel user config.
	UserConfigPath = "~/.dbkernel.yaml"

	// InitialUserConfigVersion is the first version of the dbkernel user
	// config. Config files that do not specify a version will default to
	// this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the dbkernel
	// user config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User contains the credentials used to reach the workspace. They're kept
// out of the project config so that they don't end up in version control.
type User struct {
	Version string `json:"version,omitempty"`
	Host    string `json:"host"`
	Token   string `json:"token"`
}

func (u User) getVersion() string {
	return u.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path. A
// missing file isn't an error because the credentials may instead come from
// the environment.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{Version: InitialUserConfigVersion}, nil
		}
		return User{}, errors.WithContext(err, "parse")
	}
	return config, nil
}

// WriteUser writes the given user config to disk. The file holds a token,
// so it's only readable by the owner.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath gets the path to the user's global dbkernel
// configuration. This path is expanded, so it can be directly passed to
// file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
