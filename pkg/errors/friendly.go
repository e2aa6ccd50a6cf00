package errors

import "fmt"

// FriendlyError is an error whose message is suitable for showing directly
// to users, without any additional context.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg  string
	args []interface{}
}

// NewFriendlyError creates a new FriendlyError from the format string.
func NewFriendlyError(msg string, args ...interface{}) error {
	return friendlyError{msg, args}
}

func (err friendlyError) Error() string {
	return err.FriendlyMessage()
}

func (err friendlyError) FriendlyMessage() string {
	return fmt.Sprintf(err.msg, err.args...)
}

// GetPrintableMessage returns the message that should be shown to the user
// for `err`. Friendly errors are printed without their context, and all
// other errors are printed in full.
func GetPrintableMessage(err error) string {
	if friendly, ok := RootCause(err).(FriendlyError); ok {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
