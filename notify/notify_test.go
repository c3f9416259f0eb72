package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}
	m.Publish(context.Background(), Event{TaskID: "t1"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events delivered: %d, %d", len(a.events), len(b.events))
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))
	p.Publish(context.Background(), Event{WorkspaceID: "w1", TaskType: TaskVoice, Status: "completed", Progress: 100})

	out := buf.String()
	for _, want := range []string{"workspace_id=w1", "task_type=voice", "progress=100"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestClampProgress(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 250: 100} {
		if got := ClampProgress(in); got != want {
			t.Errorf("ClampProgress(%d) = %d, want %d", in, got, want)
		}
	}
}

func dial(t *testing.T, server *httptest.Server, workspace string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?workspace=" + workspace
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, workspace string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients(workspace) != n {
		if time.Now().After(deadline) {
			t.Fatalf("workspace %s has %d clients, want %d", workspace, h.Clients(workspace), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversPerWorkspace(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("workspace"))
	}))
	defer server.Close()

	c1 := dial(t, server, "w1")
	defer c1.Close()
	c2 := dial(t, server, "w2")
	defer c2.Close()
	waitForClients(t, hub, "w1", 1)
	waitForClients(t, hub, "w2", 1)

	hub.Publish(context.Background(), Event{WorkspaceID: "w1", TaskID: "task-1", TaskType: TaskImage, Status: "processing", Progress: 50})

	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c1.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.TaskID != "task-1" || ev.Progress != 50 || ev.Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", ev)
	}

	c2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := c2.ReadMessage(); err == nil {
		t.Error("client of another workspace received the event")
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "w1")
	}))
	defer server.Close()

	conn := dial(t, server, "w1")
	waitForClients(t, hub, "w1", 1)
	conn.Close()
	waitForClients(t, hub, "w1", 0)

	// Publishing to an empty workspace is a no-op.
	hub.Publish(context.Background(), Event{WorkspaceID: "w1"})
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	c := &client{workspaceID: "w1", send: make(chan []byte, 1)}
	hub.register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Publish(context.Background(), Event{WorkspaceID: "w1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full client buffer")
	}
	if len(c.send) != 1 {
		t.Errorf("buffered %d events, want 1", len(c.send))
	}
}
