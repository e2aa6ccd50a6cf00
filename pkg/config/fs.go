package config

import (
	"os"

	"github.com/spf13/afero"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// getenv is mocked out in the tests so that they don't depend on the
// environment of the machine running them.
var getenv = os.Getenv
