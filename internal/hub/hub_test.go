package hub

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// readFrame reads lines until a blank line that ends a data frame
func readFrame(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	fields := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(fields) > 0 {
				return fields
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ": ")
		fields[key] = value
	}
}

func connect(t *testing.T, url, lastID string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	return bufio.NewReader(resp.Body)
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPublishReachesClient(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r := connect(t, srv.URL, "")
	waitForClients(t, h, 1)

	h.Publish("deployment_finished", map[string]int{"failed": 1})

	frame := readFrame(t, r)
	if frame["event"] != "deployment_finished" {
		t.Errorf("expected event name, got %q", frame["event"])
	}
	if frame["id"] != "1" {
		t.Errorf("expected id 1, got %q", frame["id"])
	}
	if frame["data"] != `{"failed":1}` {
		t.Errorf("unexpected data %q", frame["data"])
	}
}

func TestReconnectReplaysBacklog(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	h.Publish("a", 1)
	h.Publish("b", 2)
	h.Publish("c", 3)

	r := connect(t, srv.URL, "1")
	for _, want := range []string{"b", "c"} {
		frame := readFrame(t, r)
		if frame["event"] != want {
			t.Errorf("expected replayed event %s, got %s", want, frame["event"])
		}
	}
}

func TestBacklogIsBounded(t *testing.T) {
	h := New()
	h.maxLog = 2
	for i := 0; i < 5; i++ {
		h.Publish("tick", i)
	}
	if len(h.backlog) != 2 || h.backlog[0].ID != 4 {
		t.Errorf("expected last two messages kept, got %+v", h.backlog)
	}
}

func TestClientDisconnect(t *testing.T) {
	h := New().WithKeepalive(10 * time.Millisecond)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	waitForClients(t, h, 1)

	cancel()
	resp.Body.Close()
	waitForClients(t, h, 0)
}

func TestCloseEndsStreams(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r := connect(t, srv.URL, "")
	waitForClients(t, h, 1)

	h.Close()
	waitForClients(t, h, 0)

	if _, err := io.ReadAll(r); err != nil {
		t.Errorf("expected stream to end cleanly, got %v", err)
	}

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", resp.StatusCode)
	}
}
