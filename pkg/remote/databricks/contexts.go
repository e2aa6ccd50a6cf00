package databricks

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/remote"
)

const language = "python"

type contextRequest struct {
	ClusterID string `json:"clusterId"`
	ContextID string `json:"contextId,omitempty"`
	CommandID string `json:"commandId,omitempty"`
	Language  string `json:"language,omitempty"`
	Command   string `json:"command,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

// Create creates an execution context and waits until it's ready.
func (c *Client) Create(ctx context.Context, clusterID string) (string, error) {
	var created idResponse
	req := contextRequest{ClusterID: clusterID, Language: language}
	if err := c.post(ctx, "/api/1.2/contexts/create", req, &created); err != nil {
		return "", errors.WithContext(err, "create context")
	}

	query := url.Values{}
	query.Set("clusterId", clusterID)
	query.Set("contextId", created.ID)
	for {
		var status struct {
			Status string `json:"status"`
		}
		if err := c.get(ctx, "/api/1.2/contexts/status", query, &status); err != nil {
			return "", errors.WithContext(err, "get context status")
		}

		switch status.Status {
		case "Running":
			return created.ID, nil
		case "Error":
			return "", errors.New("context %s failed to start", created.ID)
		}

		if err := c.wait(ctx, c.contextPollInterval); err != nil {
			return "", err
		}
	}
}

// Destroy destroys an execution context.
func (c *Client) Destroy(ctx context.Context, clusterID, contextID string) error {
	req := contextRequest{ClusterID: clusterID, ContextID: contextID}
	return errors.WithContext(c.post(ctx, "/api/1.2/contexts/destroy", req, nil), "destroy context")
}

// Execute starts running Python code in an execution context.
func (c *Client) Execute(ctx context.Context, clusterID, contextID, code string) (string, error) {
	var started idResponse
	req := contextRequest{
		ClusterID: clusterID,
		ContextID: contextID,
		Language:  language,
		Command:   code,
	}
	if err := c.post(ctx, "/api/1.2/commands/execute", req, &started); err != nil {
		return "", errors.WithContext(err, "execute command")
	}
	return started.ID, nil
}

// Cancel asks the cluster to stop a running command.
func (c *Client) Cancel(ctx context.Context, clusterID, contextID, commandID string) error {
	req := contextRequest{ClusterID: clusterID, ContextID: contextID, CommandID: commandID}
	return errors.WithContext(c.post(ctx, "/api/1.2/commands/cancel", req, nil), "cancel command")
}

type commandResults struct {
	ResultType string          `json:"resultType"`
	Data       json.RawMessage `json:"data"`
	Summary    string          `json:"summary"`
	Cause      string          `json:"cause"`
	FileName   string          `json:"fileName"`
}

// Status returns the state and output of a command.
func (c *Client) Status(ctx context.Context, clusterID, contextID, commandID string) (
	remote.CommandStatus, error) {

	query := url.Values{}
	query.Set("clusterId", clusterID)
	query.Set("contextId", contextID)
	query.Set("commandId", commandID)

	var resp struct {
		Status  string          `json:"status"`
		Results *commandResults `json:"results"`
	}
	if err := c.get(ctx, "/api/1.2/commands/status", query, &resp); err != nil {
		return remote.CommandStatus{}, errors.WithContext(err, "get command status")
	}

	status := remote.CommandStatus{State: remote.CommandState(resp.Status)}
	if resp.Results == nil {
		return status, nil
	}

	if status.State == remote.Error {
		status.Error = resp.Results.Cause
		if status.Error == "" {
			status.Error = resp.Results.Summary
		}
		return status, nil
	}

	if frag, ok := toFragment(*resp.Results); ok {
		status.Output = []remote.Fragment{frag}
	}
	return status, nil
}

func toFragment(results commandResults) (remote.Fragment, bool) {
	if results.ResultType == "error" || results.Cause != "" {
		return remote.Fragment{
			Kind:           remote.ErrorOutput,
			Text:           results.Cause,
			Classification: exceptionName(results.Cause),
			Traceback:      splitLines(results.Summary),
		}, true
	}

	switch results.ResultType {
	case "table":
		return remote.Fragment{
			Kind:     remote.Display,
			Text:     string(results.Data),
			MIMEType: "application/json",
		}, true
	case "image", "images":
		return remote.Fragment{
			Kind:     remote.Display,
			Text:     results.FileName,
			MIMEType: "image/png",
		}, true
	}

	text, ok := dataText(results.Data)
	if !ok {
		text = results.Summary
	}
	if text == "" {
		return remote.Fragment{}, false
	}
	return remote.Fragment{Kind: remote.Stdout, Text: text}, true
}

// dataText returns the `data` field as text. It's usually a string, but
// may be any JSON value.
func dataText(data json.RawMessage) (string, bool) {
	if len(data) == 0 || string(data) == "null" {
		return "", false
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text, true
	}
	return string(data), true
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

var exceptionPattern = regexp.MustCompile(`(?m)^\s*([A-Za-z_][\w.]*(?:Error|Exception|Exit|Interrupt|Warning))\b`)

// exceptionName returns the type of the last exception in a traceback.
func exceptionName(cause string) string {
	cause = ansiPattern.ReplaceAllString(cause, "")
	matches := exceptionPattern.FindAllStringSubmatch(cause, -1)
	if len(matches) == 0 {
		return ""
	}

	name := matches[len(matches)-1][1]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
