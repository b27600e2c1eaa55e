package aspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/payload"
)

// CreateContainer posts a new top container and returns its id.
func (c *Client) CreateContainer(ctx context.Context, repoID int, tc payload.TopContainer) (int, error) {
	path := "/repositories/" + strconv.Itoa(repoID) + "/top_containers"
	body, err := c.do(ctx, http.MethodPost, path, nil, tc)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, errors.Wrap(err, "failed to decode create response")
	}
	if resp.ID == 0 {
		return 0, errors.Newf("create response carried no id: %s", body)
	}
	return resp.ID, nil
}

// FetchRecords reads a batch of archival objects by id. The backend omits
// ids it does not know; the result is in backend order.
func (c *Client) FetchRecords(ctx context.Context, repoID int, ids []int) ([]*payload.Record, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id_set", strconv.Itoa(id))
	}
	path := "/repositories/" + strconv.Itoa(repoID) + "/archival_objects"
	body, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode archival object batch")
	}
	records := make([]*payload.Record, 0, len(raw))
	for i, item := range raw {
		rec, err := payload.DecodeRecord(item)
		if err != nil {
			return nil, errors.Wrapf(err, "archival object batch item %d", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetRecord reads any record by URI.
func (c *Client) GetRecord(ctx context.Context, uri string) (*payload.Record, error) {
	body, err := c.do(ctx, http.MethodGet, uri, nil, nil)
	if err != nil {
		return nil, err
	}
	return payload.DecodeRecord(body)
}

// UpdateRecord posts rec back to its own URI.
func (c *Client) UpdateRecord(ctx context.Context, rec *payload.Record) error {
	_, err := c.do(ctx, http.MethodPost, rec.URI(), nil, rec)
	return err
}

// DeleteRecord deletes the record at uri.
func (c *Client) DeleteRecord(ctx context.Context, uri string) error {
	_, err := c.doExpect(ctx, http.MethodDelete, uri, nil, nil, http.StatusOK, http.StatusNoContent)
	return err
}
