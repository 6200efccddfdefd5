package conn

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/botlink-go/internal/content"
	"github.com/dayuer/botlink-go/internal/frame"
)

var testKey = frame.RoutingKey{APIKey: "k1", Platform: "qq"}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer runs onConn for every upgraded connection and returns the ws URL.
func wsServer(t *testing.T, onConn func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConn(raw)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func textEnvelope(t *testing.T, text string) frame.Envelope {
	t.Helper()
	c, err := content.NewText(text)
	require.NoError(t, err)
	set, err := content.NewReplySet(c)
	require.NoError(t, err)
	return frame.NewEnvelope(testKey, set)
}

func TestDialAndSend_FIFO(t *testing.T) {
	received := make(chan string, 16)
	url := wsServer(t, func(raw *websocket.Conn) {
		defer raw.Close()
		for {
			_, data, err := raw.ReadMessage()
			if err != nil {
				return
			}
			env, err := frame.Decode(data, 0)
			if err != nil {
				continue
			}
			received <- env.Content[0].Text
		}
	})

	c, err := Dial(context.Background(), Config{Key: testKey, URL: url, ReconnectAttempts: -1})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, StateConnected, c.State())

	want := []string{"one", "two", "three", "four", "five"}
	for _, w := range want {
		require.NoError(t, c.Enqueue(textEnvelope(t, w)))
	}

	for _, w := range want {
		select {
		case got := <-received:
			assert.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestEnqueue_NotConnectedAfterClose(t *testing.T) {
	url := wsServer(t, func(raw *websocket.Conn) {
		defer raw.Close()
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), Config{Key: testKey, URL: url, ReconnectAttempts: -1})
	require.NoError(t, err)

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Enqueue(textEnvelope(t, "late")), ErrNotConnected)
}

func TestEnqueue_QueueFull(t *testing.T) {
	// No loops attached: the queue cannot drain, so capacity is exact.
	c := newConnection(withDefaults(Config{Key: testKey, QueueSize: 2}), RoleClient)
	c.state.Store(int32(StateConnected))

	require.NoError(t, c.Enqueue(textEnvelope(t, "a")))
	require.NoError(t, c.Enqueue(textEnvelope(t, "b")))
	assert.ErrorIs(t, c.Enqueue(textEnvelope(t, "c")), ErrQueueFull)

	// Saturation must not drop previously queued frames.
	assert.Equal(t, 2, c.QueueLen())
}

func TestReceive_BadFrameDoesNotKillConnection(t *testing.T) {
	sendFrames := make(chan []byte, 4)
	url := wsServer(t, func(raw *websocket.Conn) {
		defer raw.Close()
		for data := range sendFrames {
			if err := raw.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Keep the socket open until the client closes.
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	})

	var mu sync.Mutex
	var got []string
	c, err := Dial(context.Background(), Config{
		Key:               testKey,
		URL:               url,
		ReconnectAttempts: -1,
		OnEnvelope: func(_ frame.RoutingKey, env frame.Envelope) {
			mu.Lock()
			got = append(got, env.Content[0].Text)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer c.Close()

	good1, err := frame.Encode(textEnvelope(t, "first"))
	require.NoError(t, err)
	good2, err := frame.Encode(textEnvelope(t, "second"))
	require.NoError(t, err)

	sendFrames <- good1
	sendFrames <- []byte("{this is not a frame")
	sendFrames <- []byte(`{"message_id":"m","kind":"standard","body":[{"type":"sticker","content":"?"}]}`)
	sendFrames <- good2
	close(sendFrames)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, got)
	mu.Unlock()
	assert.Equal(t, StateConnected, c.State())
}

func TestPeerClose_NoReconnectPolicy(t *testing.T) {
	url := wsServer(t, func(raw *websocket.Conn) {
		raw.Close() // drop the client immediately
	})

	var mu sync.Mutex
	var states []State
	c, err := Dial(context.Background(), Config{
		Key:               testKey,
		URL:               url,
		ReconnectAttempts: -1,
		OnState: func(_ frame.RoutingKey, st State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Eventually(t, func() bool {
		return c.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, states, StateClosed)
	mu.Unlock()
}

func TestReconnect_AfterPeerDrop(t *testing.T) {
	var upgrades atomic.Int64
	url := wsServer(t, func(raw *websocket.Conn) {
		n := upgrades.Add(1)
		if n == 1 {
			raw.Close() // force one reconnect cycle
			return
		}
		defer raw.Close()
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), Config{
		Key:               testKey,
		URL:               url,
		ReconnectAttempts: 5,
		ReconnectBase:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Eventually(t, func() bool {
		return upgrades.Load() >= 2 && c.State() == StateConnected
	}, 3*time.Second, 10*time.Millisecond)
}

func TestReconnect_ExhaustedBudgetSignalsLost(t *testing.T) {
	var upgrades atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if upgrades.Add(1) > 1 {
			http.Error(w, "gone", http.StatusGone) // refuse reconnects
			return
		}
		raw, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		raw.Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c, err := Dial(context.Background(), Config{
		Key:               testKey,
		URL:               url,
		ReconnectAttempts: 2,
		ReconnectBase:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Eventually(t, func() bool {
		return c.State() == StateClosed
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	url := wsServer(t, func(raw *websocket.Conn) {
		defer raw.Close()
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), Config{Key: testKey, URL: url, ReconnectAttempts: -1})
	require.NoError(t, err)

	c.Close()
	c.Close()
	assert.Equal(t, StateClosed, c.State())
}

func TestDial_ConnectTimeout(t *testing.T) {
	// A listener that accepts TCP but never answers the HTTP handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			if _, err := ln.Accept(); err != nil {
				return
			}
		}
	}()

	_, err = Dial(context.Background(), Config{
		Key:            testKey,
		URL:            "ws://" + ln.Addr().String(),
		ConnectTimeout: 100 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrConnectTimeout)
}

func TestDrain(t *testing.T) {
	url := wsServer(t, func(raw *websocket.Conn) {
		defer raw.Close()
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), Config{Key: testKey, URL: url, ReconnectAttempts: -1})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Enqueue(textEnvelope(t, "x")))
	}
	assert.True(t, c.Drain(2*time.Second))
	assert.Equal(t, 0, c.QueueLen())
}
