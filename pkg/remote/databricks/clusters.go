package databricks

import (
	"context"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// EnsureRunning starts the cluster if it's terminated, and waits until it's
// running.
func (c *Client) EnsureRunning(ctx context.Context, clusterID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.clusterStartTimeout)
	defer cancel()

	started := false
	for {
		state, err := c.clusterState(ctx, clusterID)
		if err != nil {
			return errors.WithContext(err, "get cluster state")
		}

		switch state {
		case "RUNNING":
			if started {
				log.WithField("cluster", clusterID).Info("Cluster is running")
			}
			return nil
		case "TERMINATED":
			// The state lags behind the start request.
			if started {
				break
			}

			log.WithField("cluster", clusterID).Info("Starting cluster. This may take a few minutes.")
			req := map[string]string{"cluster_id": clusterID}
			if err := c.post(ctx, "/api/2.0/clusters/start", req, nil); err != nil {
				return errors.WithContext(err, "start cluster")
			}
			started = true
		case "PENDING", "RESTARTING", "RESIZING", "TERMINATING":
		default:
			return errors.New("cluster %s is in state %s", clusterID, state)
		}

		if err := c.wait(ctx, c.clusterPollInterval); err != nil {
			return errors.WithContext(err, "wait for cluster")
		}
	}
}

func (c *Client) clusterState(ctx context.Context, clusterID string) (string, error) {
	query := url.Values{}
	query.Set("cluster_id", clusterID)

	var resp struct {
		State string `json:"state"`
	}
	err := c.get(ctx, "/api/2.0/clusters/get", query, &resp)
	return resp.State, err
}

// CurrentUser returns the name of the user that owns the access token.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var resp struct {
		UserName string `json:"userName"`
	}
	err := c.get(ctx, "/api/2.0/preview/scim/v2/Me", nil, &resp)
	if err != nil {
		return "", errors.WithContext(err, "get current user")
	}
	if resp.UserName == "" {
		return "", errors.New("workspace didn't return a user name")
	}
	return resp.UserName, nil
}
