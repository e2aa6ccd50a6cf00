// Package remote defines the interfaces dbkernel uses to talk to the
// cluster. The concrete implementations live in the databricks and s3
// subpackages.
package remote

//go:generate mockery -name ContextAPI
//go:generate mockery -name ClusterAPI
//go:generate mockery -name Runner
//go:generate mockery -name Storage
//go:generate mockery -name Upload

import (
	"context"
	"strings"
)

// CommandState is the lifecycle state of a remote command.
type CommandState string

const (
	// Queued commands have been accepted but haven't started running.
	Queued CommandState = "Queued"

	// Running commands are executing on the cluster.
	Running CommandState = "Running"

	// Cancelling commands have been asked to stop but haven't yet.
	Cancelling CommandState = "Cancelling"

	// Finished commands completed. The user's code may still have raised
	// an error, which is reported in the output.
	Finished CommandState = "Finished"

	// Cancelled commands were stopped before they completed.
	Cancelled CommandState = "Cancelled"

	// Error means the platform failed to run the command at all.
	Error CommandState = "Error"
)

// Done returns whether the command has stopped, successfully or not.
func (s CommandState) Done() bool {
	return s == Finished || s == Cancelled || s == Error
}

// FragmentKind describes what a piece of command output holds.
type FragmentKind int

const (
	// Stdout is text printed by the command.
	Stdout FragmentKind = iota

	// Stderr is text written to standard error.
	Stderr

	// Display is structured output such as a table or an image.
	Display

	// ErrorOutput is an exception raised by the user's code.
	ErrorOutput
)

// Fragment is one piece of output from a command.
type Fragment struct {
	Kind FragmentKind
	Text string

	// MIMEType is set for Display fragments.
	MIMEType string

	// Classification and Traceback are set for ErrorOutput fragments.
	Classification string
	Traceback      []string
}

// CommandStatus is the result of polling a command.
type CommandStatus struct {
	State  CommandState
	Output []Fragment

	// Error holds the platform's error text when State is Error.
	Error string
}

// ContextAPI manages execution contexts and runs commands in them.
type ContextAPI interface {
	// Create creates a new execution context on the cluster and blocks
	// until it's usable.
	Create(ctx context.Context, clusterID string) (string, error)
	Destroy(ctx context.Context, clusterID, contextID string) error

	// Execute starts running `code`, and returns the ID of the command.
	Execute(ctx context.Context, clusterID, contextID, code string) (string, error)
	Status(ctx context.Context, clusterID, contextID, commandID string) (CommandStatus, error)
	Cancel(ctx context.Context, clusterID, contextID, commandID string) error
}

// ClusterAPI manages the compute cluster itself.
type ClusterAPI interface {
	// EnsureRunning starts the cluster if it's terminated, and blocks
	// until it's running.
	EnsureRunning(ctx context.Context, clusterID string) error
}

// UserAPI identifies the owner of the access token.
type UserAPI interface {
	CurrentUser(ctx context.Context) (string, error)
}

// WorkspaceAPI manages files in the workspace file tree.
type WorkspaceAPI interface {
	// Delete removes `path`. Deleting a path that doesn't exist isn't an
	// error.
	Delete(ctx context.Context, path string, recursive bool) error
}

// Runner runs Python source in an execution context and returns its
// standard output.
type Runner interface {
	Run(ctx context.Context, code string) (string, error)
}

// Location describes where an uploaded object can be read from on the
// cluster.
type Location struct {
	// URI is the storage URI of the object, e.g. `dbfs:/tmp/a.tar.gz`.
	URI string

	// LocalPath is the path of the object on the driver's local filesystem,
	// if the storage is mounted there. If it's empty, the object must be
	// copied before it's read.
	LocalPath string
}

// Storage is the staging area that sync archives are uploaded to.
type Storage interface {
	// BeginUpload starts writing a new object at `path`, replacing any
	// existing object.
	BeginUpload(ctx context.Context, path string) (Upload, error)

	// Stat returns the size of the object at `path`.
	Stat(ctx context.Context, path string) (int64, error)
	Delete(ctx context.Context, path string, recursive bool) error

	// ChunkSize is the largest chunk accepted by a single request.
	ChunkSize() int
	Locate(path string) Location
}

// Upload is an object that's being written in chunks.
type Upload interface {
	// PutChunk writes `data` at `offset`. Chunks must be written in order.
	PutChunk(ctx context.Context, offset int64, data []byte) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context) error
}

// JoinOutput concatenates the text of all fragments of the given kind.
func JoinOutput(frags []Fragment, kind FragmentKind) string {
	var sb strings.Builder
	for _, f := range frags {
		if f.Kind == kind {
			sb.WriteString(f.Text)
		}
	}
	return sb.String()
}
