package reconnect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dbkernel/ci/util"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/execution"
)

// Test destroys the session's execution context behind its back, and checks
// that the next command runs in a replacement context that has the project.
func Test(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	require.NoError(t, helper.WriteFile("state.py", "VALUE = 42\n"))

	s, err := helper.Session(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	cmd, err := s.Execute(ctx, "import state\nx = state.VALUE")
	require.NoError(t, err)
	require.NoError(t, cmd.Err())

	lost := s.Context().ID
	require.NoError(t, helper.Client().Destroy(ctx, helper.Config.ClusterID, lost))

	// The synced files are available in the replacement context.
	cmd, err = s.Execute(ctx, "import state\nprint(state.VALUE)")
	require.NoError(t, err)
	assert.True(t, cmd.Result.Reconnected)
	assert.Equal(t, "42", strings.TrimSpace(cmd.Stdout()))
	assert.NotEqual(t, lost, s.Context().ID)
	assert.Equal(t, execution.Active, s.Context().State)

	// But variables don't survive the reconnect.
	cmd, err = s.Execute(ctx, "print(x)")
	require.NoError(t, err)
	assert.False(t, cmd.Result.Reconnected)

	var execErr errors.CommandExecutionError
	require.True(t, errors.As(cmd.Err(), &execErr))
	assert.Equal(t, "NameError", execErr.Classification)
}
