package bus

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_Publish(t *testing.T) {
	b := NewLocalBus(4, nil)
	defer b.Close()
	_, ch := b.Subscribe(TopicPathCompleted)

	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, b)

	tests := []struct {
		name           string
		method         string
		formData       url.Values
		expectedStatus int
	}{
		{"valid POST", http.MethodPost, url.Values{"topic": {TopicPathCompleted}, "payload": {`{"ok":true}`}}, http.StatusOK},
		{"missing topic", http.MethodPost, url.Values{"payload": {"{}"}}, http.StatusBadRequest},
		{"GET not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.formData != nil {
				body = strings.NewReader(tt.formData.Encode())
			}
			req := localHostRequest(tt.method, "/debug/bus-publish", body)
			if tt.formData != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}

	select {
	case m := <-ch:
		if string(m.Payload) != `{"ok":true}` {
			t.Errorf("unexpected payload %s", m.Payload)
		}
	default:
		t.Error("publish endpoint did not reach the bus")
	}
}

func TestAttachAdminRoutes_PublishAfterClose(t *testing.T) {
	b := NewLocalBus(1, nil)
	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, b)
	b.Close()

	form := url.Values{"topic": {TopicGrid}}
	req := localHostRequest(http.MethodPost, "/debug/bus-publish", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestAttachAdminRoutes_Page(t *testing.T) {
	b := NewLocalBus(1, nil)
	defer b.Close()
	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, b)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/bus", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "EventSource") {
		t.Errorf("unexpected page: %d %s", w.Code, w.Body.String())
	}
}

func TestAttachAdminRoutes_TailSSE(t *testing.T) {
	b := NewLocalBus(4, nil)
	defer b.Close()
	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, b)

	ts := httptest.NewServer(httpMux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/debug/bus-tail?topic="+url.QueryEscape(TopicTarget), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), ": ping") {
		t.Fatalf("expected initial ping, got %q", scanner.Text())
	}

	// The handler subscribed before the ping; these go out after it.
	b.Publish(TopicGrid, []byte(`{"skipped":true}`))
	b.Publish(TopicTarget, []byte(`{"detected":true,"x":0.1}`))

	gotData := false
	for i := 0; i < 5 && scanner.Scan(); i++ {
		line := scanner.Text()
		if strings.Contains(line, "skipped") {
			t.Errorf("received message for unrequested topic: %s", line)
		}
		if strings.Contains(line, `"topic":"robot/bottle_position"`) && strings.Contains(line, `"x":0.1`) {
			gotData = true
			break
		}
	}
	if !gotData {
		t.Error("did not receive SSE data event")
	}
	cancel()
}
