package run

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/execution"
	"github.com/sidkik/dbkernel/pkg/session"
)

// Mocked for unit testing.
var (
	fs                   = afero.NewOsFs()
	stdout     io.Writer = os.Stdout
	runSession           = func(fn func(context.Context, executor) error) error {
		return util.WithSession(func(ctx context.Context, s *session.Session) error {
			return fn(ctx, s)
		})
	}
)

type executor interface {
	Execute(ctx context.Context, code string) (*execution.Command, error)
}

// New creates a new `run` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE...",
		Short: "Run Python files on the cluster",
		Long: "Run each file, in order, in a single execution context. " +
			"Later files can use the variables defined by earlier ones.\n\n" +
			"The project is synced before each file runs.",
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(paths []string) error {
	// Read everything up front so that a typo doesn't fail after the
	// earlier files already ran.
	var sources []string
	for _, path := range paths {
		source, err := afero.ReadFile(fs, path)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.NewFriendlyError("%s doesn't exist.", path)
			}
			return errors.WithContext(err, fmt.Sprintf("read %s", path))
		}
		sources = append(sources, string(source))
	}

	return runSession(func(ctx context.Context, s executor) error {
		for i, source := range sources {
			log.WithField("file", paths[i]).Debug("Running file")
			cmd, err := s.Execute(ctx, source)
			if err != nil {
				return errors.WithContext(err, fmt.Sprintf("run %s", paths[i]))
			}

			if err := util.PrintResult(stdout, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}
