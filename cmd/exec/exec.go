package exec

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/execution"
	"github.com/sidkik/dbkernel/pkg/session"
)

// Mocked for unit testing.
var (
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

// New creates a new `exec` command.
func New() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "exec -c CODE",
		Short: "Run a snippet of Python on the cluster",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(code); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&code, "code", "c", "", "The code to run.")
	return cmd
}

func run(code string) error {
	if code == "" {
		return errors.NewFriendlyError("Pass the code to run with `-c`.")
	}

	return runSession(func(ctx context.Context, s executor) error {
		cmd, err := s.Execute(ctx, code)
		if err != nil {
			return err
		}
		return util.PrintResult(stdout, cmd)
	})
}
