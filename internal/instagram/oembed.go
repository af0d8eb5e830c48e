package instagram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://www.instagram.com"

// Client fetches post metadata from the oEmbed endpoint.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second),
	}
}

type oembedResponse struct {
	Timestamp string `json:"timestamp"`
}

// FetchTimestamp returns the post's publish time for a normalized permalink,
// or nil when the endpoint does not expose one. Callers treat any error as a
// degraded lookup, not a submission failure.
func (c *Client) FetchTimestamp(ctx context.Context, permalink string) (*time.Time, error) {
	var body oembedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("url", permalink).
		SetResult(&body).
		Get("/oembed/")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oembed status %d", resp.StatusCode())
	}
	if body.Timestamp == "" {
		return nil, nil
	}

	ts, err := time.Parse(time.RFC3339, body.Timestamp)
	if err != nil {
		return nil, nil
	}
	utc := ts.UTC()
	return &utc, nil
}
