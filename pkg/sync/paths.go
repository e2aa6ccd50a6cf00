package sync

import (
	"path"
	"path/filepath"
	"strings"
)

// AppName is the directory created under the user's workspace directory.
const AppName = "dbkernel"

// SanitizePathComponent makes `s` safe to use as a single remote path
// component. Separators become underscores, traversal sequences and other
// special characters are removed, and an empty result becomes "unknown".
func SanitizePathComponent(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	s = strings.Replace(s, "..", "", -1)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '@', r == '-':
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

// DefaultSessionID derives the session ID from the project root. It's
// stable across runs so that the sync cache from a previous run is reused.
func DefaultSessionID(root string) string {
	name := SanitizePathComponent(filepath.Base(root))
	return name + "-" + HashBytes([]byte(root)).String()[:8]
}

// StagingDir returns the directory that holds the session's archives.
func StagingDir(tmpRoot, sessionID string) string {
	return path.Join(tmpRoot, SanitizePathComponent(sessionID))
}

// TargetDir returns the directory on the cluster that the project is
// materialized into.
func TargetDir(workspaceRoot, user, sessionID string) string {
	return path.Join(workspaceRoot, SanitizePathComponent(user), AppName,
		SanitizePathComponent(sessionID))
}
