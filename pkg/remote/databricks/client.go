// Package databricks implements the remote interfaces with the Databricks
// REST API. Commands run through the 1.2 command execution API, and sync
// archives are staged in DBFS.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
	"github.com/sidkik/dbkernel/pkg/version"
)

var (
	_ remote.ContextAPI = &Client{}
	_ remote.ClusterAPI = &Client{}
	_ remote.UserAPI    = &Client{}
)

// Client talks to a single Databricks workspace.
type Client struct {
	host   string
	client *http.Client
	clock  clockwork.Clock

	// contextPollInterval is how often to check whether a new context is
	// ready.
	contextPollInterval time.Duration

	// clusterPollInterval is how often to check whether a cluster has
	// started, and clusterStartTimeout is how long to wait for it.
	clusterPollInterval time.Duration
	clusterStartTimeout time.Duration
}

// New returns a client for the workspace at `host` that authenticates with
// a personal access token.
func New(host, token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		host:                strings.TrimSuffix(host, "/"),
		client:              oauth2.NewClient(context.Background(), tokenSource),
		clock:               clockwork.NewRealClock(),
		contextPollInterval: time.Second,
		clusterPollInterval: 10 * time.Second,
		clusterStartTimeout: 20 * time.Minute,
	}
}

// APIError is an error response from the workspace.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (err APIError) Error() string {
	if err.Code == "" {
		return fmt.Sprintf("%s (HTTP %d)", err.Message, err.StatusCode)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", err.Code, err.Message, err.StatusCode)
}

// IsNotFound returns whether `err` is a response about a missing resource.
func IsNotFound(err error) bool {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.Code == "RESOURCE_DOES_NOT_EXIST"
}

func parseError(statusCode int, body []byte) error {
	var resp struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
		Error     string `json:"error"`
	}

	apiErr := APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, &resp); err == nil {
		apiErr.Code = resp.ErrorCode
		apiErr.Message = resp.Message
		if apiErr.Message == "" {
			apiErr.Message = resp.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, in, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		reqBytes, err := json.Marshal(in)
		if err != nil {
			return errors.WithContext(err, "marshal request")
		}
		body = bytes.NewReader(reqBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.WithContext(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBytes)
	}

	if out == nil || len(respBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return errors.WithContext(err, "parse response")
	}
	return nil
}

// wait blocks for `d`, or until `ctx` is done.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-c.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
