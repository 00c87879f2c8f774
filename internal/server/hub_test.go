package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// addClient installs a client directly, bypassing the run loop, so delivery
// paths can be exercised without live pump goroutines.
func (h *Hub) addClient(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[c.id] = c
}

func newHubClient(id string) *Client {
	c := newBareClient(id)
	c.send = make(chan []byte, 4)
	return c
}

func TestHubSendToRegisteredClient(t *testing.T) {
	req := require.New(t)
	hub := NewHub(discardLogger())
	c := newHubClient("h1")
	hub.addClient(c)

	req.True(hub.SendTo("h1", []byte("payload")))
	req.Equal([]byte("payload"), <-c.send)
}

func TestHubSendToUnknownHandle(t *testing.T) {
	hub := NewHub(discardLogger())
	require.False(t, hub.SendTo("ghost", []byte("payload")))
}

func TestHubSendToClosedClient(t *testing.T) {
	hub := NewHub(discardLogger())
	c := newHubClient("h1")
	c.closed = true
	hub.addClient(c)

	require.False(t, hub.SendTo("h1", []byte("payload")))
}

func TestHubSendToFullBufferFails(t *testing.T) {
	req := require.New(t)
	hub := NewHub(discardLogger())
	c := newBareClient("h1")
	c.send = make(chan []byte) // unbuffered, nobody reading
	hub.addClient(c)

	req.False(hub.SendTo("h1", []byte("payload")))
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	req := require.New(t)
	hub := NewHub(discardLogger())
	a := newHubClient("hA")
	b := newHubClient("hB")
	hub.addClient(a)
	hub.addClient(b)

	hub.handleBroadcast([]byte("presence"))

	req.Equal([]byte("presence"), <-a.send)
	req.Equal([]byte("presence"), <-b.send)
	req.Equal(2, hub.ClientCount())
}

func TestHubBroadcastDropsSaturatedClient(t *testing.T) {
	req := require.New(t)
	hub := NewHub(discardLogger())
	healthy := newHubClient("hA")
	saturated := newBareClient("hB")
	saturated.send = make(chan []byte) // always full
	hub.addClient(healthy)
	hub.addClient(saturated)

	hub.handleBroadcast([]byte("presence"))

	req.Equal([]byte("presence"), <-healthy.send)
	req.Equal(1, hub.ClientCount())
	req.True(saturated.closed)

	// The saturated client's send channel was closed.
	_, open := <-saturated.send
	req.False(open)
}

func TestHubRunIgnoresNilRegistration(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()

	select {
	case hub.register <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("run loop did not accept registration")
	}

	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubShutdownCompletes(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))

	// Register/Unregister after shutdown must not block.
	done := make(chan struct{})
	go func() {
		hub.Register(newHubClient("h1"))
		hub.Unregister(newHubClient("h2"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("register after shutdown blocked")
	}
}
