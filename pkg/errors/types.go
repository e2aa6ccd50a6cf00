package errors

import (
	"fmt"
	"time"
)

// ErrFileChanged is returned when a file is modified between when it's
// scanned and when it's packaged for transfer.
var ErrFileChanged = New("file contents changed during sync")

// ErrCommandInProgress is returned when a command is submitted while another
// command is still outstanding on the same execution context.
var ErrCommandInProgress = New("a command is already running in this execution context")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConfigurationError represents a missing or invalid required setting.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (err ConfigurationError) Error() string {
	return err.FriendlyMessage()
}

func (err ConfigurationError) FriendlyMessage() string {
	return fmt.Sprintf("Invalid configuration for %q: %s", err.Field, err.Detail)
}

// FileSizeError is returned when a single file, or the project as a whole,
// exceeds a configured size limit. Path is empty when the total is at fault.
type FileSizeError struct {
	Path  string
	Size  int64
	Total int64
	Limit int64
}

func (err FileSizeError) Error() string {
	return err.FriendlyMessage()
}

func (err FileSizeError) FriendlyMessage() string {
	if err.Path != "" {
		return fmt.Sprintf("File %q is %s, which exceeds the per-file limit of %s.\n"+
			"Add it to the sync excludes or raise `max_file_size_mb`.",
			err.Path, megabytes(err.Size), megabytes(err.Limit))
	}
	return fmt.Sprintf("The project is %s, which exceeds the limit of %s.\n"+
		"Exclude large files from the sync or raise `max_size_mb`.",
		megabytes(err.Total), megabytes(err.Limit))
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}

// TransferError is returned when uploading or materializing a sync archive
// fails partway.
type TransferError struct {
	Stage string
	Err   error
}

func (err TransferError) Error() string {
	return fmt.Sprintf("transfer failed during %s: %s", err.Stage, err.Err)
}

func (err TransferError) Unwrap() error {
	return err.Err
}

// ContextCreationError is returned when the remote execution context can't
// be created, either because of a timeout or because the cluster rejected
// the request.
type ContextCreationError struct {
	Err error
}

func (err ContextCreationError) Error() string {
	return fmt.Sprintf("failed to create execution context: %s", err.Err)
}

func (err ContextCreationError) Unwrap() error {
	return err.Err
}

// ContextInvalidated is returned when the remote reports that the execution
// context no longer exists. It's Fatal if the context was invalidated again
// after reconnecting, or if reconnection is disabled.
type ContextInvalidated struct {
	Message string
	Fatal   bool

	// ReconnectDisabled is set when no reconnect was attempted.
	ReconnectDisabled bool
}

func (err ContextInvalidated) Error() string {
	if err.Fatal && err.ReconnectDisabled {
		return fmt.Sprintf("execution context invalidated and reconnecting is disabled: %s",
			err.Message)
	}
	if err.Fatal {
		return fmt.Sprintf("Reconnection failed: execution context invalidated: %s", err.Message)
	}
	return fmt.Sprintf("execution context invalidated: %s", err.Message)
}

// CommandTimeoutError is returned when a command doesn't finish within the
// execution timeout. The result of the command is unknown: it may still be
// running remotely.
type CommandTimeoutError struct {
	CommandID string
	Timeout   time.Duration
}

func (err CommandTimeoutError) Error() string {
	if err.Timeout == 0 {
		return fmt.Sprintf("command %s was interrupted before it finished; "+
			"its result is unknown", err.CommandID)
	}
	return fmt.Sprintf("command %s did not finish within %s; "+
		"its result is unknown", err.CommandID, err.Timeout)
}

// CommandExecutionError is an error raised by the user's code. It's a normal
// command outcome rather than a system failure.
type CommandExecutionError struct {
	Message        string
	Classification string
	Traceback      []string
}

func (err CommandExecutionError) Error() string {
	return err.Message
}
