package session

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// fakeWorkspace emulates the cluster closely enough to run the sync
// scripts. It recognizes each script by the marker it prints, and echoes
// any other code.
type fakeWorkspace struct {
	live      map[string]bool
	created   []string
	destroyed []string
	scripts   map[string][]string
	outputs   map[string]string
	nextID    map[string]int

	// dirExists tracks whether the synced directory is on the cluster.
	dirExists bool

	// expireNext makes the next command fail because the context expired.
	expireNext bool

	objects map[string][]byte

	// removed lists the paths deleted through the workspace API.
	removed []string
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		live:    map[string]bool{},
		scripts: map[string][]string{},
		outputs: map[string]string{},
		objects: map[string][]byte{},
		nextID:  map[string]int{},
	}
}

func (w *fakeWorkspace) apis() Remote {
	return Remote{Contexts: w, Users: w, Storage: fakeStorage{w}, Workspace: fakeFiles{w}}
}

func (w *fakeWorkspace) id(prefix string) string {
	w.nextID[prefix]++
	return fmt.Sprintf("%s-%d", prefix, w.nextID[prefix])
}

// kinds returns the kind of each script run in a context.
func (w *fakeWorkspace) kinds(contextID string) (kinds []string) {
	for _, script := range w.scripts[contextID] {
		kinds = append(kinds, scriptKind(script))
	}
	return kinds
}

func scriptKind(code string) string {
	switch {
	case strings.Contains(code, `print("materialized")`):
		return "materialize"
	case strings.Contains(code, "print(os.path.isdir("):
		return "exists"
	case strings.Contains(code, `print("injected")`):
		return "inject"
	case strings.Contains(code, `print("removed")`):
		return "cleanup"
	}
	return code
}

func (w *fakeWorkspace) CurrentUser(context.Context) (string, error) {
	return "ada@example.com", nil
}

func (w *fakeWorkspace) Create(context.Context, string) (string, error) {
	id := w.id("ctx")
	w.live[id] = true
	w.created = append(w.created, id)
	return id, nil
}

func (w *fakeWorkspace) Destroy(_ context.Context, _, contextID string) error {
	delete(w.live, contextID)
	w.destroyed = append(w.destroyed, contextID)
	return nil
}

func (w *fakeWorkspace) Execute(_ context.Context, _, contextID, code string) (string, error) {
	if !w.live[contextID] {
		return "", errors.New("Context %s not found", contextID)
	}

	if w.expireNext {
		w.expireNext = false
		delete(w.live, contextID)
		return "", errors.New("Execution context expired")
	}

	w.scripts[contextID] = append(w.scripts[contextID], code)

	var out string
	switch scriptKind(code) {
	case "materialize":
		w.dirExists = true
		out = "materialized\n"
	case "exists":
		out = "False\n"
		if w.dirExists {
			out = "True\n"
		}
	case "inject":
		out = "injected\n"
	case "cleanup":
		w.dirExists = false
		out = "removed\n"
	default:
		out = "ran " + code + "\n"
	}

	id := w.id("cmd")
	w.outputs[id] = out
	return id, nil
}

func (w *fakeWorkspace) Status(_ context.Context, _, _, commandID string) (remote.CommandStatus, error) {
	return remote.CommandStatus{
		State:  remote.Finished,
		Output: []remote.Fragment{{Kind: remote.Stdout, Text: w.outputs[commandID]}},
	}, nil
}

func (w *fakeWorkspace) Cancel(context.Context, string, string, string) error {
	return nil
}

type fakeStorage struct {
	w *fakeWorkspace
}

type fakeUpload struct {
	w    *fakeWorkspace
	path string
}

func (s fakeStorage) BeginUpload(_ context.Context, p string) (remote.Upload, error) {
	s.w.objects[p] = nil
	return fakeUpload{s.w, p}, nil
}

func (s fakeStorage) Stat(_ context.Context, p string) (int64, error) {
	data, ok := s.w.objects[p]
	if !ok {
		return 0, errors.FileNotFound{Path: p}
	}
	return int64(len(data)), nil
}

func (s fakeStorage) Delete(_ context.Context, p string, recursive bool) error {
	for key := range s.w.objects {
		if key == p || (recursive && strings.HasPrefix(key, p+"/")) {
			delete(s.w.objects, key)
		}
	}
	return nil
}

func (s fakeStorage) ChunkSize() int {
	return 1 << 20
}

func (s fakeStorage) Locate(p string) remote.Location {
	return remote.Location{URI: "dbfs:" + p, LocalPath: path.Join("/dbfs", p)}
}

func (u fakeUpload) PutChunk(_ context.Context, _ int64, data []byte) error {
	u.w.objects[u.path] = append(u.w.objects[u.path], data...)
	return nil
}

func (u fakeUpload) Complete(context.Context) error {
	return nil
}

func (u fakeUpload) Abort(context.Context) error {
	delete(u.w.objects, u.path)
	return nil
}

type fakeFiles struct {
	w *fakeWorkspace
}

func (f fakeFiles) Delete(_ context.Context, p string, recursive bool) error {
	if !recursive {
		return errors.New("%s is a directory", p)
	}
	f.w.removed = append(f.w.removed, p)
	f.w.dirExists = false
	return nil
}
