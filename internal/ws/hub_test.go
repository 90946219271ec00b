package ws

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(id string) *Client {
	return &Client{
		conn:   nil, // Not needed for hub tests
		id:     id,
		send:   make(chan Message, 256),
		logger: testLogger(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("client-1")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	// Verify channel is closed by attempting to receive.
	_, ok := <-client.send
	if ok {
		t.Error("client.send channel is not closed")
	}
}

func TestUnregisterNotRegistered(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("client-1")

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Unregister() panicked: %v", r)
		}
	}()

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestUnregisterTwice(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("client-1")

	hub.Register(client)
	hub.Unregister(client)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Unregister() panicked: %v", r)
		}
	}()

	hub.Unregister(client)
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	client1 := newTestClient("client-1")
	client2 := newTestClient("client-2")
	hub.Register(client1)
	hub.Register(client2)

	msg := Message{
		Type:      MessageServiceEvent,
		Timestamp: time.Now(),
	}

	hub.Broadcast(msg)

	for i, client := range []*Client{client1, client2} {
		select {
		case received := <-client.send:
			if received.Type != MessageServiceEvent {
				t.Errorf("client %d received Type = %v, want %v", i+1, received.Type, MessageServiceEvent)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i+1)
		}
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(testLogger())

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Broadcast() to empty hub panicked: %v", r)
		}
	}()

	hub.Broadcast(Message{Type: MessageSnapshot, Timestamp: time.Now()})
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("client-1")
	hub.Register(client)

	// Fill the client's send buffer (capacity is 256).
	for i := 0; i < 256; i++ {
		client.send <- Message{Type: MessageServiceEvent, Timestamp: time.Now()}
	}

	hub.Broadcast(Message{Type: MessageError, Timestamp: time.Now()})

	if len(client.send) != 256 {
		t.Errorf("client.send buffer length = %d, want 256 (message should have been dropped)", len(client.send))
	}

	received := <-client.send
	if received.Type == MessageError {
		t.Error("dropped message was unexpectedly received")
	}
}

func TestClientSend(t *testing.T) {
	client := newTestClient("client-1")

	if ok := client.Send(Message{Type: MessageSnapshot}); !ok {
		t.Error("Send() = false, want true on empty buffer")
	}

	for i := 0; i < 255; i++ {
		client.send <- Message{Type: MessageServiceEvent}
	}

	if ok := client.Send(Message{Type: MessageSnapshot}); ok {
		t.Error("Send() = true, want false on full buffer")
	}
}

func TestConcurrentRegisterUnregisterBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	var wg sync.WaitGroup
	numClients := 50
	numBroadcasts := 100

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client := newTestClient(string(rune('a' + id)))
			hub.Register(client)

			// Drain messages to prevent buffer from filling.
			go func() {
				for range client.send {
				}
			}()

			time.Sleep(10 * time.Millisecond)
			hub.Unregister(client)
		}(i)
	}

	for i := 0; i < numBroadcasts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: MessageServiceEvent, Timestamp: time.Now()})
		}()
	}

	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after all clients unregistered", hub.ClientCount())
	}
}
