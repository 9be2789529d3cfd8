package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential probes to the same host
// reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if err := client.Do(ctx, Probe{URL: server.URL, Timeout: 5 * time.Second}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestClient_Do_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"not modified", http.StatusNotModified, false},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			err := NewClient().Do(context.Background(), Probe{URL: server.URL, Timeout: time.Second})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var pe *ProbeError
				if !errors.As(err, &pe) {
					t.Fatalf("Do() error = %T, want *ProbeError", err)
				}
				if pe.StatusCode != tt.code {
					t.Errorf("ProbeError.StatusCode = %d, want %d", pe.StatusCode, tt.code)
				}
			}
		})
	}
}

func TestClient_Do_SendsMethodAndHeaders(t *testing.T) {
	var gotMethod, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewClient().Do(context.Background(), Probe{
		Method:  http.MethodHead,
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer abc"},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %q, want HEAD", gotMethod)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer abc")
	}
}

// TestClient_Do_ParentCancellation verifies that a cancelled parent context is
// reported as the context error rather than a wrapped request failure.
func TestClient_Do_ParentCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewClient().Do(ctx, Probe{URL: server.URL, Timeout: 5 * time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}

// TestClient_Do_ProbeTimeoutIsFailure verifies that the probe's own timeout is
// a plain failure while the parent context is still live.
func TestClient_Do_ProbeTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx := context.Background()
	err := NewClient().Do(ctx, Probe{URL: server.URL, Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("Do() error = nil, want timeout failure")
	}
	if ctx.Err() != nil {
		t.Fatal("parent context should still be live")
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client
	client.Close()
}

// TestClient_Close_ClientStillUsable verifies that the client keeps working
// after its idle connections are closed.
func TestClient_Close_ClientStillUsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	task := client.Task(Probe{URL: server.URL, Timeout: time.Second})

	for i := 0; i < 3; i++ {
		if err := task(context.Background()); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	client.Close()

	if err := task(context.Background()); err != nil {
		t.Errorf("request after Close failed: %v", err)
	}
}

func TestClient_Do_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer server.Close()

	var gotBody string
	err := NewClient().Do(context.Background(), Probe{
		URL: server.URL,
		Check: func(body []byte, statusCode int) error {
			gotBody = string(body)
			return errors.New("status is degraded")
		},
	})
	if err == nil || !strings.Contains(err.Error(), "check failed") {
		t.Fatalf("Do() error = %v, want check failure", err)
	}
	if gotBody != `{"status":"degraded"}` {
		t.Errorf("check saw body %q", gotBody)
	}

	err = NewClient().Do(context.Background(), Probe{
		URL:   server.URL,
		Check: func([]byte, int) error { return nil },
	})
	if err != nil {
		t.Errorf("Do() with passing check error = %v", err)
	}
}

func TestClient_Do_CheckDecidesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
	}))
	defer server.Close()

	client := NewClient()

	var gotStatus int
	err := client.Do(context.Background(), Probe{
		URL: server.URL,
		Check: func(_ []byte, statusCode int) error {
			gotStatus = statusCode
			if statusCode == http.StatusServiceUnavailable {
				return nil
			}
			return errors.New("unexpected status")
		},
	})
	if err != nil {
		t.Errorf("Do() with check accepting 503 error = %v", err)
	}
	if gotStatus != http.StatusServiceUnavailable {
		t.Errorf("check saw status %d, want 503", gotStatus)
	}

	err = client.Do(context.Background(), Probe{URL: server.URL})
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) || probeErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Do() without check error = %v, want ProbeError 503", err)
	}
}
