package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestMockHTTPClientQueuedResponses(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(202, "accepted").AddErrorResponse(errors.New("gateway down"))

	resp, err := m.Post("http://gw/api/poll-rate", "application/json", strings.NewReader(`{"seconds":0.5}`))
	if err != nil {
		t.Fatalf("first post failed: %v", err)
	}
	if resp.StatusCode != 202 {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	if _, err := m.Post("http://gw/api/poll-rate", "application/json", nil); err == nil {
		t.Error("expected queued error on second post")
	}

	if m.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2", m.RequestCount())
	}
	last := m.LastRequest()
	if last == nil || last.URL != "http://gw/api/poll-rate" {
		t.Errorf("last request = %+v", last)
	}
	first := m.Requests[0]
	if first.Body != `{"seconds":0.5}` {
		t.Errorf("recorded body = %q", first.Body)
	}
}

func TestMockHTTPClientDefaultResponse(t *testing.T) {
	m := NewMockHTTPClient()
	resp, err := m.Post("http://gw/x", "text/plain", nil)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
