package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	shared "github.com/dogpatrol/server/pkg"
	httputil "github.com/dogpatrol/server/pkg/infrastructure/http"
)

// Client is an API client for the Strava v3 API. Authentication is
// the transport's job: pass an http.Client built around
// oauth.Transport (and, for batch work, a Gate underneath it).
type Client struct {
	client *http.Client
}

// NewClient creates a new Strava API client
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{client: httpClient}
}

// ListActivitiesParams are parameters for listing athlete activities
type ListActivitiesParams struct {
	After   time.Time // only activities starting after this instant
	Page    int
	PerPage int
}

// doRequest performs an HTTP request and surfaces non-2xx responses
// as *httputil.HTTPError (retryable for 429/5xx).
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	url := shared.StravaAPIBase + path
	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if err := httputil.ParseErrorResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// GetActivity retrieves a single activity by ID
func (c *Client) GetActivity(ctx context.Context, activityID int64) (*Activity, error) {
	path := fmt.Sprintf("/activities/%d", activityID)

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var activity Activity
	if err := json.NewDecoder(resp.Body).Decode(&activity); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &activity, nil
}

// UpdateActivityName renames an activity
func (c *Client) UpdateActivityName(ctx context.Context, activityID int64, name string) error {
	path := fmt.Sprintf("/activities/%d", activityID)

	resp, err := c.doRequest(ctx, "PUT", path, map[string]string{"name": name})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListActivities retrieves one page of the athlete's activities,
// most recent first.
func (c *Client) ListActivities(ctx context.Context, params ListActivitiesParams) ([]Activity, error) {
	q := url.Values{}
	if !params.After.IsZero() {
		q.Set("after", strconv.FormatInt(params.After.Unix(), 10))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}

	path := "/athlete/activities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return activities, nil
}
