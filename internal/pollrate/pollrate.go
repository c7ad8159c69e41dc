// Package pollrate asks a cooperating instrument gateway to poll its
// sensors faster while a recording session is live. The calls are strictly
// best effort: a missing or unreachable gateway never affects recording, so
// failures are logged at debug level and swallowed.
package pollrate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/saildata/polar.report/internal/httputil"
	"github.com/saildata/polar.report/internal/monitoring"
)

// Client issues polling-rate requests against a gateway base URL.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient creates a pollrate client. An empty baseURL disables the client;
// every call becomes a silent no-op.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: baseURL, http: hc}
}

// Enabled reports whether a gateway is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// SetFast asks the gateway for a fast polling interval, in seconds.
func (c *Client) SetFast(seconds float64) {
	c.post("set_interval", map[string]any{"seconds": seconds})
}

// Reset returns the gateway to its default polling interval.
func (c *Client) Reset() {
	c.post("reset_interval", nil)
}

func (c *Client) post(action string, payload map[string]any) {
	if !c.Enabled() {
		return
	}

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			monitoring.Debugf("pollrate: failed to encode %s payload: %v", action, err)
			return
		}
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, action)
	resp, err := c.http.Post(url, "application/json", &body)
	if err != nil {
		monitoring.Debugf("pollrate: %s call failed: %v", action, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		monitoring.Debugf("pollrate: %s returned status %d", action, resp.StatusCode)
	}
}
