package sync

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dbkernel/ci/util"
)

// readScript prints the contents of a synced file, or MISSING if it isn't
// on the cluster. The synced directory is always first on sys.path.
const readScript = `import os, sys
p = os.path.join(sys.path[0], %q)
print(open(p).read() if os.path.exists(p) else "MISSING")`

func Test(t *testing.T, helper *util.TestHelper) {
	t.Run("FileChange", func(t *testing.T) {
		testFileChange(t, helper)
	})
	t.Run("Ignore", func(t *testing.T) {
		testIgnore(t, helper)
	})
	t.Run("Import", func(t *testing.T) {
		testImport(t, helper)
	})
}

func testFileChange(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tests := []struct {
		name     string
		change   func() error
		expected string
	}{
		{
			name:     "Create",
			change:   func() error { return helper.WriteFile("data/test-file", "initial contents") },
			expected: "initial contents",
		},
		{
			name:     "ChangeContents",
			change:   func() error { return helper.WriteFile("data/test-file", "changed contents") },
			expected: "changed contents",
		},
		{
			name:     "Remove",
			change:   func() error { return helper.RemoveFile("data/test-file") },
			expected: "MISSING",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, test.change())

			out, err := helper.Exec(ctx, fmt.Sprintf(readScript, "data/test-file"))
			require.NoError(t, err)
			assert.Equal(t, test.expected, strings.TrimSpace(out))
		})
	}
}

func testIgnore(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	require.NoError(t, helper.WriteFile(".gitignore", "*.log\nbuild/\n"))
	require.NoError(t, helper.WriteFile("debug.log", "ignored"))
	require.NoError(t, helper.WriteFile("build/out.txt", "ignored"))
	require.NoError(t, helper.WriteFile("src/build/kept.txt", "kept"))

	for path, expected := range map[string]string{
		"debug.log":          "MISSING",
		"build/out.txt":      "MISSING",
		"src/build/kept.txt": "kept",
	} {
		out, err := helper.Exec(ctx, fmt.Sprintf(readScript, path))
		require.NoError(t, err)
		assert.Equal(t, expected, strings.TrimSpace(out), path)
	}
}

func testImport(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	require.NoError(t, helper.WriteFile("pkg/__init__.py", ""))
	require.NoError(t, helper.WriteFile("pkg/greeting.py", "MESSAGE = 'hello from the project'\n"))

	out, err := helper.Exec(ctx, "from pkg import greeting\nprint(greeting.MESSAGE)")
	require.NoError(t, err)
	assert.Equal(t, "hello from the project", strings.TrimSpace(out))
}
