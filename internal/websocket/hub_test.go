package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, code string) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		code: code,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "111111")
	c2 := mockClient(hub, "111111")
	c3 := mockClient(hub, "222222")

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}
	if got := hub.Spectators("111111"); got != 2 {
		t.Fatalf("expected 2 spectators, got %d", got)
	}
	if got := hub.RoomCount(); got != 2 {
		t.Fatalf("expected 2 rooms, got %d", got)
	}

	hub.Unregister(c3)

	if got := hub.RoomCount(); got != 1 {
		t.Fatalf("expected empty room to be dropped, got %d rooms", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "111111")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "111111")
	c2 := mockClient(hub, "111111")
	other := mockClient(hub, "222222")
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)

	hub.Broadcast(StateMessage("111111", json.RawMessage(`{"home":12,"away":9}`)))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != TypeState {
				t.Errorf("expected type %s, got %s", TypeState, got.Type)
			}
			if got.Code != "111111" {
				t.Errorf("expected code 111111, got %s", got.Code)
			}
			if string(got.State) != `{"home":12,"away":9}` {
				t.Errorf("unexpected state %s", got.State)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case data := <-other.send:
		t.Errorf("other room received %s", data)
	default:
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
	hub.Unregister(other)
}

func TestBroadcastEmptyRoom(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(StateMessage("999999", json.RawMessage(`{}`)))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "111111")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(StateMessage("111111", json.RawMessage(`{}`)))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(StateMessage("111111", json.RawMessage(`{"dropped":true}`)))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestStateMessage(t *testing.T) {
	msg := StateMessage("123456", json.RawMessage(`{"period":2}`))
	if msg.Type != TypeState {
		t.Errorf("expected type %s, got %s", TypeState, msg.Type)
	}
	if msg.Code != "123456" {
		t.Errorf("expected code 123456, got %s", msg.Code)
	}
	if msg.SentAt.IsZero() {
		t.Error("expected SentAt to be set")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := "111111"
			if i%2 == 0 {
				code = "222222"
			}
			c := mockClient(hub, code)
			hub.Register(c)
			hub.Broadcast(StateMessage(code, json.RawMessage(`{}`)))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
	if got := hub.RoomCount(); got != 0 {
		t.Errorf("expected 0 rooms after concurrent test, got %d", got)
	}
}

func TestEndedClosesRoom(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "111111")
	c2 := mockClient(hub, "111111")
	other := mockClient(hub, "222222")
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)

	hub.Broadcast(EndedMessage("111111"))

	for i, c := range []*Client{c1, c2} {
		raw, ok := <-c.send
		if !ok {
			t.Fatalf("client %d: channel closed before the ended message", i)
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("client %d: unmarshal: %v", i, err)
		}
		if msg.Type != TypeEnded || msg.Code != "111111" {
			t.Errorf("client %d: msg = %+v", i, msg)
		}
		if _, ok := <-c.send; ok {
			t.Errorf("client %d: channel still open", i)
		}
	}

	if got := hub.Spectators("111111"); got != 0 {
		t.Errorf("spectators = %d, want 0", got)
	}
	if got := hub.Spectators("222222"); got != 1 {
		t.Errorf("other room spectators = %d, want 1", got)
	}
	select {
	case raw := <-other.send:
		t.Errorf("other room received %s", raw)
	default:
	}

	// Run's deferred Unregister must not close the channel a second time.
	hub.Unregister(c1)
}
