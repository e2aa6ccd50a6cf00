package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	tests := []struct {
		name  string
		rules []string
		path  string
		exp   bool
	}{
		{"ExtensionMatches", []string{"*.log"}, "a.log", true},
		{"ExtensionIsSuffixOnly", []string{"*.log"}, "a.log.txt", false},
		{"NameMatchesAtAnyDepth", []string{"*.log"}, "logs/2024/app.log", true},
		{"DoubleStarExtension", []string{"**/*.log"}, "logs/2024/app.log", true},
		{"DirectoryRuleExcludesContents", []string{"data/"}, "data/x.csv", true},
		{"DirectoryRuleIsAnchored", []string{"data/"}, "other/data/x.csv", false},
		{"DoubleStarDirectoryAtDepth", []string{"**/data/"}, "other/data/x.csv", true},
		{"DoubleStarDirectoryAtRoot", []string{"**/data/"}, "data/x.csv", true},
		{"DirectoryRuleDoesNotMatchFile", []string{"data/"}, "data", false},
		{"NegationReincludes", []string{"*.log", "!keep.log"}, "keep.log", false},
		{"NegationIsSpecific", []string{"*.log", "!keep.log"}, "other.log", true},
		{"LaterRuleWins", []string{"!keep.log", "*.log"}, "keep.log", true},
		{"AnchoredGlob", []string{"data/*.csv"}, "data/x.csv", true},
		{"AnchoredGlobAtRoot", []string{"data/*.csv"}, "results.csv", false},
		{"AnchoredGlobNotNested", []string{"data/*.csv"}, "data/sub/x.csv", false},
		{"VirtualEnvContents", []string{".venv/**"}, ".venv/lib/site.py", true},
		{"VirtualEnvPrefixOnly", []string{".venv/**"}, "venv.py", false},
		{"BareDirectoryName", []string{"__pycache__"}, "pkg/__pycache__/mod.cpython-38.pyc", true},
		{"Comment", []string{"# *.py"}, "main.py", false},
		{"MetadataDirectory", nil, ".dbkernel/cache-session.json", true},
		{"MetadataDirectoryCannotBeReincluded", []string{"!.dbkernel/", "!.dbkernel/**"},
			".dbkernel/cache-session.json", true},
		{"NoRules", nil, "main.py", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			matcher := CompileMatcher(test.rules)
			assert.Equal(t, test.exp, matcher.Excluded(test.path))
		})
	}
}

func TestMatchDirectory(t *testing.T) {
	matcher := CompileMatcher([]string{"data/", ".git"})
	assert.True(t, matcher.Match("data", true))
	assert.False(t, matcher.Match("src/data", true))
	assert.True(t, matcher.Match(".git", true))
	assert.True(t, matcher.Match("vendor/.git", true))
	assert.True(t, matcher.Match(MetadataDir, true))
}

func TestLoadRules(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/.gitignore",
		[]byte("# build output\nbuild/\n\n*.log\n"), 0644))

	rules, err := LoadRules("/project", true, []string{"!debug.log"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build/", "*.log", "!debug.log"}, rules)

	// The configured excludes come last, so they take precedence.
	matcher := CompileMatcher(rules)
	assert.False(t, matcher.Excluded("debug.log"))
	assert.True(t, matcher.Excluded("app.log"))
	assert.True(t, matcher.Excluded("build/out.bin"))

	rules, err = LoadRules("/project", false, []string{"*.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.csv"}, rules)

	rules, err = LoadRules("/no-ignore-file", true, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
