package sync

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/src-d/go-git.v4/plumbing/format/gitignore"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// MetadataDir is the directory that holds dbkernel's local state, such as
// the sync cache. It's never synced.
const MetadataDir = ".dbkernel"

// IgnoreFileName is the ignore file that's read from the project root.
const IgnoreFileName = ".gitignore"

// Matcher decides which paths are excluded from the sync. Rules follow
// gitignore semantics: later rules take precedence over earlier ones, and a
// rule prefixed with `!` re-includes paths excluded by an earlier rule.
type Matcher struct {
	matcher gitignore.Matcher
}

// CompileMatcher compiles `rules` into a Matcher. Blank rules and comments
// are ignored.
func CompileMatcher(rules []string) *Matcher {
	var patterns []gitignore.Pattern
	for _, rule := range rules {
		rule = strings.TrimRight(rule, "\r")
		if strings.TrimSpace(rule) == "" || strings.HasPrefix(rule, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(anchorDirRule(rule), nil))
	}
	return &Matcher{matcher: gitignore.NewMatcher(patterns)}
}

// anchorDirRule anchors directory rules such as `data/` to the project
// root. Only rules whose sole separator is the trailing one are affected.
// `**/data/` still matches at any depth.
func anchorDirRule(rule string) string {
	negate := strings.HasPrefix(rule, "!")
	body := strings.TrimPrefix(rule, "!")
	trimmed := strings.TrimRight(body, " ")
	if !strings.HasSuffix(trimmed, "/") ||
		strings.Contains(strings.TrimSuffix(trimmed, "/"), "/") {
		return rule
	}

	anchored := "/" + trimmed
	if negate {
		return "!" + anchored
	}
	return anchored
}

// Match returns whether the slash separated `path`, relative to the project
// root, is excluded. It doesn't consider whether a parent directory is
// excluded. See Excluded for that.
func (m *Matcher) Match(path string, isDir bool) bool {
	parts := strings.Split(path, "/")

	// The metadata directory is checked outside of the user rules so that
	// it can't be re-included.
	for _, part := range parts[:len(parts)-1] {
		if part == MetadataDir {
			return true
		}
	}
	if isDir && parts[len(parts)-1] == MetadataDir {
		return true
	}

	return m.matcher.Match(parts, isDir)
}

// Excluded returns whether `path` is a file that's excluded, either
// directly or because one of its parent directories is.
func (m *Matcher) Excluded(path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if m.Match(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return m.Match(path, false)
}

// LoadRules returns the exclusion rules for the project at `root`. The
// rules from the project's ignore file come first so that the configured
// excludes take precedence.
func LoadRules(root string, useIgnoreFile bool, excludes []string) ([]string, error) {
	var rules []string
	if useIgnoreFile {
		ignoreRules, err := readIgnoreFile(filepath.Join(root, IgnoreFileName))
		if err != nil {
			return nil, errors.WithContext(err, "read ignore file")
		}
		rules = append(rules, ignoreRules...)
	}
	return append(rules, excludes...), nil
}

func readIgnoreFile(path string) ([]string, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rules []string
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return rules, scanner.Err()
}
