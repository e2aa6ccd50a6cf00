package execution

import (
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// Command is a unit of code submitted to an execution context.
type Command struct {
	ID        string
	ContextID string
	Source    string
	State     remote.CommandState
	Result    Result
}

// Result is the output of a command.
type Result struct {
	Output []remote.Fragment

	// Reconnected is set if the execution context was lost while running
	// the command, and the command was retried in a new context.
	Reconnected bool
}

// Stdout returns everything the command printed.
func (cmd *Command) Stdout() string {
	return remote.JoinOutput(cmd.Result.Output, remote.Stdout)
}

// Err returns the exception raised by the user's code, if any.
func (cmd *Command) Err() error {
	for _, frag := range cmd.Result.Output {
		if frag.Kind != remote.ErrorOutput {
			continue
		}
		return errors.CommandExecutionError{
			Message:        frag.Text,
			Classification: frag.Classification,
			Traceback:      frag.Traceback,
		}
	}
	return nil
}
