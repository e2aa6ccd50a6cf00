package version

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/dbkernel/pkg/version"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of dbkernel.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "dbkernel version: %s\n", version.Version)
		},
	}
}
