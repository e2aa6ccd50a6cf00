package databricks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

const token = "dapi-token"

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "dbkernel/")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	client := New(server.URL+"/", token)
	client.contextPollInterval = 0
	client.clusterPollInterval = 0
	return client
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func readJSON(t *testing.T, r *http.Request) map[string]interface{} {
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestCreateContext(t *testing.T) {
	var polls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1.2/contexts/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, map[string]interface{}{
			"clusterId": "cluster",
			"language":  "python",
		}, readJSON(t, r))
		writeJSON(w, map[string]string{"id": "ctx-1"})
	})
	mux.HandleFunc("/api/1.2/contexts/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "cluster", r.URL.Query().Get("clusterId"))
		assert.Equal(t, "ctx-1", r.URL.Query().Get("contextId"))

		polls++
		status := "Pending"
		if polls == 3 {
			status = "Running"
		}
		writeJSON(w, map[string]string{"id": "ctx-1", "status": status})
	})

	id, err := newTestClient(t, mux).Create(context.Background(), "cluster")
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", id)
	assert.Equal(t, 3, polls)
}

func TestCreateContextFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1.2/contexts/create", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "ctx-1"})
	})
	mux.HandleFunc("/api/1.2/contexts/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "ctx-1", "status": "Error"})
	})

	_, err := newTestClient(t, mux).Create(context.Background(), "cluster")
	assert.EqualError(t, err, "context ctx-1 failed to start")
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		expErr string
	}{
		{
			name:   "ErrorCode",
			status: http.StatusBadRequest,
			body:   `{"error_code":"INVALID_PARAMETER_VALUE","message":"Context ctx-1 not found"}`,
			expErr: "execute command: INVALID_PARAMETER_VALUE: Context ctx-1 not found (HTTP 400)",
		},
		{
			name:   "ErrorField",
			status: http.StatusInternalServerError,
			body:   `{"error":"ContextNotFound: ctx-1"}`,
			expErr: "execute command: ContextNotFound: ctx-1 (HTTP 500)",
		},
		{
			name:   "PlainText",
			status: http.StatusBadGateway,
			body:   "bad gateway\n",
			expErr: "execute command: bad gateway (HTTP 502)",
		},
		{
			name:   "EmptyBody",
			status: http.StatusServiceUnavailable,
			expErr: "execute command: Service Unavailable (HTTP 503)",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/1.2/commands/execute", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			})

			_, err := newTestClient(t, mux).Execute(context.Background(), "cluster", "ctx-1", "1")
			assert.EqualError(t, err, test.expErr)

			var apiErr APIError
			assert.True(t, errors.As(err, &apiErr))
			assert.Equal(t, test.status, apiErr.StatusCode)
		})
	}
}

func TestExecute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1.2/commands/execute", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, map[string]interface{}{
			"clusterId": "cluster",
			"contextId": "ctx-1",
			"language":  "python",
			"command":   "print(1+1)",
		}, readJSON(t, r))
		writeJSON(w, map[string]string{"id": "cmd-1"})
	})

	id, err := newTestClient(t, mux).Execute(context.Background(), "cluster", "ctx-1", "print(1+1)")
	require.NoError(t, err)
	assert.Equal(t, "cmd-1", id)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		resp string
		exp  remote.CommandStatus
	}{
		{
			name: "Running",
			resp: `{"id":"cmd-1","status":"Running"}`,
			exp:  remote.CommandStatus{State: remote.Running},
		},
		{
			name: "Text",
			resp: `{"status":"Finished","results":{"resultType":"text","data":"2\n"}}`,
			exp: remote.CommandStatus{
				State:  remote.Finished,
				Output: []remote.Fragment{{Kind: remote.Stdout, Text: "2\n"}},
			},
		},
		{
			name: "NonStringData",
			resp: `{"status":"Finished","results":{"resultType":"text","data":42}}`,
			exp: remote.CommandStatus{
				State:  remote.Finished,
				Output: []remote.Fragment{{Kind: remote.Stdout, Text: "42"}},
			},
		},
		{
			name: "NoOutput",
			resp: `{"status":"Finished","results":{"resultType":"text","data":""}}`,
			exp:  remote.CommandStatus{State: remote.Finished},
		},
		{
			name: "Table",
			resp: `{"status":"Finished","results":{"resultType":"table","data":[[1,"a"]]}}`,
			exp: remote.CommandStatus{
				State: remote.Finished,
				Output: []remote.Fragment{{
					Kind:     remote.Display,
					Text:     `[[1,"a"]]`,
					MIMEType: "application/json",
				}},
			},
		},
		{
			name: "Image",
			resp: `{"status":"Finished","results":{"resultType":"image","fileName":"/plots/a.png"}}`,
			exp: remote.CommandStatus{
				State: remote.Finished,
				Output: []remote.Fragment{{
					Kind:     remote.Display,
					Text:     "/plots/a.png",
					MIMEType: "image/png",
				}},
			},
		},
		{
			name: "UserError",
			resp: `{"status":"Finished","results":{"resultType":"error",` +
				`"cause":"Traceback (most recent call last):\n  File \"<cell>\", line 1\n` +
				`\u001b[0;31mNameError\u001b[0m: name 'x' is not defined",` +
				`"summary":"NameError: name 'x' is not defined"}}`,
			exp: remote.CommandStatus{
				State: remote.Finished,
				Output: []remote.Fragment{{
					Kind: remote.ErrorOutput,
					Text: "Traceback (most recent call last):\n  File \"<cell>\", line 1\n" +
						"\x1b[0;31mNameError\x1b[0m: name 'x' is not defined",
					Classification: "NameError",
					Traceback:      []string{"NameError: name 'x' is not defined"},
				}},
			},
		},
		{
			name: "QualifiedException",
			resp: `{"status":"Finished","results":{"resultType":"error",` +
				`"cause":"pyspark.sql.utils.AnalysisException: Table not found"}}`,
			exp: remote.CommandStatus{
				State: remote.Finished,
				Output: []remote.Fragment{{
					Kind:           remote.ErrorOutput,
					Text:           "pyspark.sql.utils.AnalysisException: Table not found",
					Classification: "AnalysisException",
				}},
			},
		},
		{
			name: "PlatformError",
			resp: `{"status":"Error","results":{"resultType":"error","cause":"Context not found"}}`,
			exp:  remote.CommandStatus{State: remote.Error, Error: "Context not found"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/1.2/commands/status", func(w http.ResponseWriter, r *http.Request) {
				query := r.URL.Query()
				assert.Equal(t, "cluster", query.Get("clusterId"))
				assert.Equal(t, "ctx-1", query.Get("contextId"))
				assert.Equal(t, "cmd-1", query.Get("commandId"))
				fmt.Fprint(w, test.resp)
			})

			status, err := newTestClient(t, mux).Status(context.Background(), "cluster", "ctx-1", "cmd-1")
			require.NoError(t, err)
			assert.Equal(t, test.exp, status)
		})
	}
}

func TestDestroyAndCancel(t *testing.T) {
	var destroyed, cancelled map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1.2/contexts/destroy", func(w http.ResponseWriter, r *http.Request) {
		destroyed = readJSON(t, r)
		writeJSON(w, map[string]string{"id": "ctx-1"})
	})
	mux.HandleFunc("/api/1.2/commands/cancel", func(w http.ResponseWriter, r *http.Request) {
		cancelled = readJSON(t, r)
	})

	client := newTestClient(t, mux)
	require.NoError(t, client.Cancel(context.Background(), "cluster", "ctx-1", "cmd-1"))
	require.NoError(t, client.Destroy(context.Background(), "cluster", "ctx-1"))

	assert.Equal(t, map[string]interface{}{
		"clusterId": "cluster",
		"contextId": "ctx-1",
		"commandId": "cmd-1",
	}, cancelled)
	assert.Equal(t, map[string]interface{}{
		"clusterId": "cluster",
		"contextId": "ctx-1",
	}, destroyed)
}

func TestEnsureRunning(t *testing.T) {
	tests := []struct {
		name      string
		states    []string
		expStarts int
		expErr    string
	}{
		{
			name:   "AlreadyRunning",
			states: []string{"RUNNING"},
		},
		{
			name:      "Terminated",
			states:    []string{"TERMINATED", "TERMINATED", "PENDING", "PENDING", "RUNNING"},
			expStarts: 1,
		},
		{
			name:   "Restarting",
			states: []string{"RESTARTING", "RUNNING"},
		},
		{
			name:   "BadState",
			states: []string{"ERROR"},
			expErr: "cluster cluster is in state ERROR",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var polls, starts int
			mux := http.NewServeMux()
			mux.HandleFunc("/api/2.0/clusters/get", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "cluster", r.URL.Query().Get("cluster_id"))
				state := test.states[len(test.states)-1]
				if polls < len(test.states) {
					state = test.states[polls]
				}
				polls++
				writeJSON(w, map[string]string{"cluster_id": "cluster", "state": state})
			})
			mux.HandleFunc("/api/2.0/clusters/start", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, map[string]interface{}{"cluster_id": "cluster"}, readJSON(t, r))
				starts++
			})

			err := newTestClient(t, mux).EnsureRunning(context.Background(), "cluster")
			if test.expErr != "" {
				assert.EqualError(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, len(test.states), polls)
			}
			assert.Equal(t, test.expStarts, starts)
		})
	}
}

func TestCurrentUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/preview/scim/v2/Me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"userName": "ada@example.com"})
	})

	user, err := newTestClient(t, mux).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user)
}

// fakeDBFS is an in-memory DBFS that supports a single file.
type fakeDBFS struct {
	dirs    []string
	files   map[string][]byte
	open    map[int64]string
	deleted []string
}

func (fs *fakeDBFS) mux(t *testing.T) *http.ServeMux {
	notFound := func(w http.ResponseWriter, path string) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{
			"error_code": "RESOURCE_DOES_NOT_EXIST",
			"message":    fmt.Sprintf("No file or directory exists on path %s.", path),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/dbfs/mkdirs", func(w http.ResponseWriter, r *http.Request) {
		fs.dirs = append(fs.dirs, readJSON(t, r)["path"].(string))
	})
	mux.HandleFunc("/api/2.0/dbfs/create", func(w http.ResponseWriter, r *http.Request) {
		body := readJSON(t, r)
		assert.Equal(t, true, body["overwrite"])

		handle := int64(len(fs.open) + 7)
		fs.open[handle] = body["path"].(string)
		fs.files[body["path"].(string)] = nil
		writeJSON(w, map[string]int64{"handle": handle})
	})
	mux.HandleFunc("/api/2.0/dbfs/add-block", func(w http.ResponseWriter, r *http.Request) {
		body := readJSON(t, r)
		path := fs.open[int64(body["handle"].(float64))]
		data, err := base64.StdEncoding.DecodeString(body["data"].(string))
		require.NoError(t, err)
		fs.files[path] = append(fs.files[path], data...)
	})
	mux.HandleFunc("/api/2.0/dbfs/close", func(w http.ResponseWriter, r *http.Request) {
		delete(fs.open, int64(readJSON(t, r)["handle"].(float64)))
	})
	mux.HandleFunc("/api/2.0/dbfs/get-status", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		data, ok := fs.files[path]
		if !ok {
			notFound(w, path)
			return
		}
		writeJSON(w, map[string]interface{}{
			"path":      path,
			"is_dir":    false,
			"file_size": len(data),
		})
	})
	mux.HandleFunc("/api/2.0/dbfs/delete", func(w http.ResponseWriter, r *http.Request) {
		path := readJSON(t, r)["path"].(string)
		if _, ok := fs.files[path]; !ok {
			notFound(w, path)
			return
		}
		delete(fs.files, path)
		fs.deleted = append(fs.deleted, path)
	})
	return mux
}

func newFakeDBFS() *fakeDBFS {
	return &fakeDBFS{
		files: map[string][]byte{},
		open:  map[int64]string{},
	}
}

func TestDBFSUpload(t *testing.T) {
	fake := newFakeDBFS()
	storage := newTestClient(t, fake.mux(t)).DBFS()
	ctx := context.Background()
	path := "/tmp/dbkernel/session/archive.tar.gz"

	upload, err := storage.BeginUpload(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/dbkernel/session"}, fake.dirs)

	require.NoError(t, upload.PutChunk(ctx, 0, []byte("hello ")))
	require.NoError(t, upload.PutChunk(ctx, 6, []byte("world")))
	assert.EqualError(t, upload.PutChunk(ctx, 3, []byte("x")),
		"chunk at offset 3 is out of order: 11 bytes written")
	require.NoError(t, upload.Complete(ctx))
	assert.Empty(t, fake.open)
	assert.Equal(t, "hello world", string(fake.files[path]))

	size, err := storage.Stat(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	require.NoError(t, storage.Delete(ctx, path, false))
	assert.Equal(t, []string{path}, fake.deleted)

	// Missing files.
	_, err = storage.Stat(ctx, path)
	assert.Equal(t, errors.FileNotFound{Path: path}, err)
	assert.NoError(t, storage.Delete(ctx, path, false))
}

func TestDBFSAbort(t *testing.T) {
	fake := newFakeDBFS()
	storage := newTestClient(t, fake.mux(t)).DBFS()
	ctx := context.Background()

	upload, err := storage.BeginUpload(ctx, "/tmp/partial")
	require.NoError(t, err)
	require.NoError(t, upload.PutChunk(ctx, 0, []byte("part")))
	require.NoError(t, upload.Abort(ctx))

	assert.Empty(t, fake.open)
	assert.Equal(t, []string{"/tmp/partial"}, fake.deleted)
}

func TestDBFSLocate(t *testing.T) {
	storage := New("https://example.cloud.databricks.com", token).DBFS()
	assert.Equal(t, remote.Location{
		URI:       "dbfs:/tmp/dbkernel/s/a.tar.gz",
		LocalPath: "/dbfs/tmp/dbkernel/s/a.tar.gz",
	}, storage.Locate("/tmp/dbkernel/s/a.tar.gz"))
	assert.Equal(t, 1<<20, storage.ChunkSize())
}
