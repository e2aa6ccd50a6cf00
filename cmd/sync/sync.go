package sync

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/pkg/session"
	dbsync "github.com/sidkik/dbkernel/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	runSession           = util.WithSession
)

// New creates a new `sync` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the project to the cluster",
		Long: "Sync the project to the cluster once, and add it to the " +
			"Python path of a new execution context.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	return runSession(func(ctx context.Context, s *session.Session) error {
		changes, err := s.Sync(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(stdout, summarize(changes, s.Target()))
		return nil
	})
}

func summarize(changes dbsync.ChangeSet, target string) string {
	if changes.Empty() {
		return fmt.Sprintf("%s is up to date.", target)
	}
	return fmt.Sprintf("Synced to %s: %d added, %d modified, %d removed.", target,
		len(changes.Added), len(changes.Modified), len(changes.Removed))
}
