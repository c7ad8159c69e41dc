package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledSerialMuxLifecycle(t *testing.T) {
	mux := NewDisabledSerialMux()

	id, ch := mux.Subscribe()
	if err := mux.SendCommand("ignored"); err != nil {
		t.Errorf("SendCommand on disabled mux should be a no-op: %v", err)
	}

	mux.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel should be closed")
	}

	if err := mux.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// closing twice is harmless
	if err := mux.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// subscribing after close hands back a closed channel
	_, ch2 := mux.Subscribe()
	if _, ok := <-ch2; ok {
		t.Error("post-close subscription should yield a closed channel")
	}
}

func TestDisabledSerialMuxMonitorWaitsForCancel(t *testing.T) {
	mux := NewDisabledSerialMux()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not exit on cancel")
	}
}

func TestDisabledSerialMuxAdminRoute(t *testing.T) {
	mux := NewDisabledSerialMux()
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest("GET", "/debug/serial-disabled", nil)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
