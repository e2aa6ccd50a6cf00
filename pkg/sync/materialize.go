package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

// Values are substituted into the scripts as JSON, which Python parses as
// literals.
var materializeTemplate = template.Must(template.New("materialize").Parse(`
import importlib, os, shutil, sys, tarfile
target = {{.Target}}
archive = {{.LocalPath}}
{{- if .Copy}}
archive = {{.Scratch}}
dbutils.fs.cp({{.URI}}, "file:" + archive)
{{- end}}
{{- if .Full}}
shutil.rmtree(target, ignore_errors=True)
{{- end}}
os.makedirs(target, exist_ok=True)
root = os.path.realpath(target)
def _dbkernel_inside(rel):
    p = os.path.realpath(os.path.join(root, rel))
    if not p.startswith(root + os.sep):
        raise ValueError("refusing to touch path outside of the sync directory: " + rel)
    return p
for rel in {{.Removed}}:
    p = _dbkernel_inside(rel)
    if os.path.isfile(p) or os.path.islink(p):
        os.remove(p)
with tarfile.open(archive, "r:gz") as tf:
    for member in tf.getmembers():
        _dbkernel_inside(member.name)
    tf.extractall(root)
{{- if .Copy}}
os.remove(archive)
{{- end}}
if root not in sys.path:
    sys.path.insert(0, root)
importlib.invalidate_caches()
print("materialized")
`))

var injectPathTemplate = template.Must(template.New("inject").Parse(`
import importlib, os, sys
root = os.path.realpath({{.Target}})
if root not in sys.path:
    sys.path.insert(0, root)
importlib.invalidate_caches()
print("injected")
`))

var existsTemplate = template.Must(template.New("exists").Parse(`
import os
print(os.path.isdir({{.Target}}))
`))

var cleanupTemplate = template.Must(template.New("cleanup").Parse(`
import os, shutil, sys
root = os.path.realpath({{.Target}})
if root in sys.path:
    sys.path.remove(root)
shutil.rmtree(root, ignore_errors=True)
print("removed")
`))

// Materializer makes synced archives available to code running in the
// execution context.
type Materializer struct {
	Runner remote.Runner

	// Target is the directory the project is extracted into.
	Target string
}

type scriptArgs struct {
	Target, LocalPath, URI, Scratch, Removed string
	Copy, Full                               bool
}

// Materialize extracts `archive`, which was uploaded to `loc`, into the
// target directory, deletes the files it records as removed, and puts the
// target on sys.path. Materializing the same archive twice leaves the
// directory in the same state.
func (m Materializer) Materialize(ctx context.Context, loc remote.Location, archive *Archive) error {
	if loc.URI == "" && loc.LocalPath == "" {
		return errors.TransferError{Stage: "materialize", Err: errors.New("archive location is empty")}
	}

	removed := archive.Changes.Removed
	if removed == nil {
		removed = []string{}
	}

	args := scriptArgs{
		Target:    quote(m.Target),
		LocalPath: quote(loc.LocalPath),
		URI:       quote(loc.URI),
		Scratch:   quote("/tmp/dbkernel-" + archive.Name),
		Removed:   quote(removed),
		Copy:      loc.LocalPath == "",
		Full:      archive.Full,
	}
	if err := m.run(ctx, materializeTemplate, args, "materialized"); err != nil {
		return errors.TransferError{Stage: "materialize", Err: err}
	}
	return nil
}

// InjectPath puts the target directory on sys.path. It's needed for every
// new execution context, even if the files are already materialized.
func (m Materializer) InjectPath(ctx context.Context) error {
	return m.run(ctx, injectPathTemplate, scriptArgs{Target: quote(m.Target)}, "injected")
}

// Exists returns whether the target directory exists on the cluster.
func (m Materializer) Exists(ctx context.Context) (bool, error) {
	out, err := m.render(ctx, existsTemplate, scriptArgs{Target: quote(m.Target)})
	if err != nil {
		return false, err
	}

	switch lastLine(out) {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return false, fmt.Errorf("unexpected output from existence check: %q", out)
}

// Cleanup removes the target directory from the cluster.
func (m Materializer) Cleanup(ctx context.Context) error {
	return m.run(ctx, cleanupTemplate, scriptArgs{Target: quote(m.Target)}, "removed")
}

func (m Materializer) run(ctx context.Context, tmpl *template.Template,
	args scriptArgs, sentinel string) error {
	out, err := m.render(ctx, tmpl, args)
	if err != nil {
		return err
	}

	if lastLine(out) != sentinel {
		return fmt.Errorf("unexpected output from %s script: %q", tmpl.Name(), out)
	}
	return nil
}

func (m Materializer) render(ctx context.Context, tmpl *template.Template,
	args scriptArgs) (string, error) {
	var script bytes.Buffer
	if err := tmpl.Execute(&script, args); err != nil {
		return "", errors.WithContext(err, "render script")
	}
	return m.Runner.Run(ctx, script.String())
}

func quote(v interface{}) string {
	// Marshalling strings and string slices can't fail.
	b, _ := json.Marshal(v)
	return string(b)
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
