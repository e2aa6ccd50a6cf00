package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbsync "github.com/sidkik/dbkernel/pkg/sync"
)

func TestSummarize(t *testing.T) {
	target := "/Workspace/Users/ada@example.com/dbkernel/test"
	assert.Equal(t, target+" is up to date.", summarize(dbsync.ChangeSet{}, target))

	changes := dbsync.ChangeSet{
		Added:     []dbsync.FileEntry{{Path: "a.py"}, {Path: "b.py"}},
		Modified:  []dbsync.FileEntry{{Path: "c.py"}},
		Unchanged: []dbsync.FileEntry{{Path: "d.py"}},
		Removed:   []string{"e.py"},
	}
	assert.Equal(t, "Synced to "+target+": 2 added, 1 modified, 1 removed.",
		summarize(changes, target))
}
