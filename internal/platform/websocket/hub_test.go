package websocket

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.New(io.Discard), nil)
}

func newClient(id, topic string) *Client {
	return &Client{ID: id, Topic: topic, Send: make(chan []byte, 4)}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := newTestHub()
	client := newClient("c1", "session-1")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("session-1") != 1 {
		t.Fatalf("expected 1 client on session-1, got %d/%d", hub.ClientCount(), hub.TopicCount("session-1"))
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := newTestHub()
	sub := newClient("sub", "session-1")
	other := newClient("other", "session-2")
	hub.Register(sub)
	hub.Register(other)

	hub.Publish("session-1", "notification", map[string]string{"title": "Patient registered"})

	select {
	case msg := <-sub.Send:
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if evt.Type != "notification" || evt.Topic != "session-1" {
			t.Errorf("unexpected event: %+v", evt)
		}
		if !strings.Contains(string(evt.Data), "Patient registered") {
			t.Errorf("unexpected data: %s", evt.Data)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("subscriber of another topic should not receive the event")
	default:
	}
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	client := &Client{ID: "slow", Topic: "t", Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Publish("t", "a", 1)
	hub.Publish("t", "b", 2)

	if len(client.Send) != 1 {
		t.Errorf("expected 1 buffered event, got %d", len(client.Send))
	}
}

func TestHub_PublishUnmarshalablePayload(t *testing.T) {
	hub := newTestHub()
	client := newClient("c", "t")
	hub.Register(client)

	hub.Publish("t", "bad", make(chan int))

	if len(client.Send) != 0 {
		t.Error("expected nothing delivered for an unmarshalable payload")
	}
}

func TestHub_CloseTopic(t *testing.T) {
	hub := newTestHub()
	a := newClient("a", "session-1")
	b := newClient("b", "session-1")
	c := newClient("c", "session-2")
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	hub.CloseTopic("session-1")

	if hub.TopicCount("session-1") != 0 {
		t.Errorf("expected topic to be empty, got %d", hub.TopicCount("session-1"))
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 remaining client, got %d", hub.ClientCount())
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if !check(req) {
		t.Error("expected request without Origin to pass")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Error("expected allowed origin to pass")
	}
	req.Header.Set("Origin", "http://evil.test")
	if check(req) {
		t.Error("expected unknown origin to be rejected")
	}

	if !originChecker([]string{"*"})(req) {
		t.Error("expected wildcard to accept any origin")
	}
}

func TestHub_ServeDeliversEvents(t *testing.T) {
	hub := newTestHub()

	e := echo.New()
	e.GET("/events/:topic", func(c echo.Context) error {
		return hub.Serve(c, c.Param("topic"))
	})
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/session-42"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("session-42") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish("session-42", "redirect", map[string]string{"path": "/search?patient=P000001"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if evt.Type != "redirect" || !strings.Contains(string(evt.Data), "P000001") {
		t.Errorf("unexpected event: %+v", evt)
	}

	hub.CloseTopic("session-42")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !gorillawebsocket.IsCloseError(err, gorillawebsocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestHub_ServeSelectsTokenSubprotocol(t *testing.T) {
	hub := newTestHub()

	e := echo.New()
	e.GET("/events/:topic", func(c echo.Context) error {
		return hub.Serve(c, c.Param("topic"))
	})
	server := httptest.NewServer(e)
	defer server.Close()

	dialer := gorillawebsocket.Dialer{Subprotocols: []string{"bearer", "token-value"}}
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/session-7"
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if got := conn.Subprotocol(); got != "bearer" {
		t.Errorf("expected bearer subprotocol, got %q", got)
	}
}
