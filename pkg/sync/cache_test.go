package sync

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	unchanged := FileEntry{Path: "unchanged.py", Size: 1, Hash: HashBytes([]byte("a"))}
	modified := FileEntry{Path: "modified.py", Size: 1, Hash: HashBytes([]byte("new"))}
	added := FileEntry{Path: "added.py", Size: 1, Hash: HashBytes([]byte("c"))}

	cache := Cache{
		"unchanged.py": unchanged.Hash,
		"modified.py":  HashBytes([]byte("old")),
		"removed.py":   HashBytes([]byte("gone")),
		"also-gone.py": HashBytes([]byte("gone")),
	}

	changes := cache.Diff([]FileEntry{added, modified, unchanged})
	assert.Equal(t, ChangeSet{
		Added:     []FileEntry{added},
		Modified:  []FileEntry{modified},
		Unchanged: []FileEntry{unchanged},
		Removed:   []string{"also-gone.py", "removed.py"},
	}, changes)
	assert.False(t, changes.Empty())
	assert.Equal(t, []FileEntry{added, modified}, changes.Changed())
}

func TestDiffEmptyCache(t *testing.T) {
	entries := []FileEntry{
		{Path: "a.py", Hash: HashBytes([]byte("a"))},
		{Path: "b.py", Hash: HashBytes([]byte("b"))},
	}
	changes := Cache{}.Diff(entries)
	assert.Equal(t, entries, changes.Added)
	assert.Empty(t, changes.Modified)
	assert.Empty(t, changes.Removed)
}

// Touching a file doesn't change its contents, so it shouldn't be resynced.
// Changing a single byte should.
func TestDiffSingleByteChange(t *testing.T) {
	fs = afero.NewMemMapFs()
	for i := 0; i < 100; i++ {
		path := fmt.Sprintf("/project/file-%03d.py", i)
		require.NoError(t, afero.WriteFile(fs, path, []byte(fmt.Sprintf("x = %d\n", i)), 0644))
	}

	matcher := CompileMatcher(nil)
	before, err := Scan("/project", matcher, Limits{})
	require.NoError(t, err)

	cache := Cache{}
	require.NoError(t, cache.Commit("/project/.dbkernel/cache.json", before))

	require.NoError(t, afero.WriteFile(fs, "/project/file-042.py", []byte("x = 43\n"), 0644))
	after, err := Scan("/project", matcher, Limits{})
	require.NoError(t, err)

	changes := LoadCache("/project/.dbkernel/cache.json").Diff(after)
	assert.Equal(t, []string{"file-042.py"}, paths(changes.Modified))
	assert.Len(t, changes.Unchanged, 99)
	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Removed)
}

func TestLoadCache(t *testing.T) {
	path := "/project/.dbkernel/cache-session.json"
	digest := HashBytes([]byte("contents"))

	tests := []struct {
		name     string
		contents *string
		exp      Cache
	}{
		{
			name: "Missing",
			exp:  Cache{},
		},
		{
			name:     "Valid",
			contents: strPtr(fmt.Sprintf(`{"version": 1, "files": {"main.py": %q}}`, digest)),
			exp:      Cache{"main.py": digest},
		},
		{
			name:     "NotJSON",
			contents: strPtr("{not json"),
			exp:      Cache{},
		},
		{
			name:     "BadDigest",
			contents: strPtr(`{"version": 1, "files": {"main.py": "zz"}}`),
			exp:      Cache{},
		},
		{
			name:     "WrongVersion",
			contents: strPtr(fmt.Sprintf(`{"version": 7, "files": {"main.py": %q}}`, digest)),
			exp:      Cache{},
		},
		{
			name:     "Empty",
			contents: strPtr(""),
			exp:      Cache{},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			if test.contents != nil {
				require.NoError(t, afero.WriteFile(fs, path, []byte(*test.contents), 0644))
			}
			assert.Equal(t, test.exp, LoadCache(path))
		})
	}
}

func TestCommitPrunesRemovedFiles(t *testing.T) {
	fs = afero.NewMemMapFs()
	path := CachePath("/project", "session")
	assert.Equal(t, "/project/.dbkernel/cache-session.json", path)

	cache := Cache{}
	first := []FileEntry{
		{Path: "a.py", Hash: HashBytes([]byte("a"))},
		{Path: "b.py", Hash: HashBytes([]byte("b"))},
	}
	require.NoError(t, cache.Commit(path, first))
	assert.Equal(t, Cache{"a.py": first[0].Hash, "b.py": first[1].Hash}, cache)

	second := first[:1]
	require.NoError(t, cache.Commit(path, second))
	assert.Equal(t, Cache{"a.py": first[0].Hash}, cache)
	assert.Equal(t, cache, LoadCache(path))

	exists, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, ResetCache(path))
	assert.Equal(t, Cache{}, LoadCache(path))

	// Resetting a missing cache is a no-op.
	assert.NoError(t, ResetCache(path))
}

func strPtr(s string) *string {
	return &s
}
