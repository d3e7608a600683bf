package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

type chanBus struct{ ch chan []byte }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	if channel != domain.ChannelTrades {
		return nil, io.EOF
	}
	return b.ch, nil
}

func httpHandler(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.HandleWS)
	return mux
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var status frame
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "status", status.Type)
	return conn
}

func publish(t *testing.T, bus *chanBus, curve, tx string) {
	t.Helper()
	b, err := json.Marshal(domain.TradeEvent{Kind: domain.TradeEventBuy, Curve: curve, TxHash: tx})
	require.NoError(t, err)
	bus.ch <- b
}

func TestHubFiltersByCurve(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server", ChainID: 11124})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	all := dial(t, srv, "")
	onlyA := dial(t, srv, "?curve=0x00000000000000000000000000000000000000AA")

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 2
	}, 2*time.Second, 10*time.Millisecond)

	publish(t, bus, "0x00000000000000000000000000000000000000bb", "0x1")
	publish(t, bus, "0x00000000000000000000000000000000000000aa", "0x2")

	read := func(conn *websocket.Conn) domain.TradeEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		mt, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		assert.Equal(t, "trade", f.Type)
		var evt domain.TradeEvent
		require.NoError(t, json.Unmarshal(f.Payload, &evt))
		return evt
	}

	assert.Equal(t, "0x1", read(all).TxHash)
	assert.Equal(t, "0x2", read(all).TxHash)
	assert.Equal(t, "0x2", read(onlyA).TxHash, "filtered client skips other curves")
}

func TestClientFilterMessages(t *testing.T) {
	c := &client{curves: map[string]bool{}}
	assert.True(t, c.wants("0xanything"))

	c.apply(controlMsg{Action: "subscribe", Curves: []string{"0xAA", " "}})
	assert.True(t, c.wants("0xaa"))
	assert.False(t, c.wants("0xbb"))

	c.apply(controlMsg{Action: "unsubscribe", Curves: []string{"0xaa"}})
	assert.True(t, c.wants("0xbb"), "empty filter means every curve")
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(&chanBus{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{AllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, hub.checkOrigin(req))
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, hub.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, hub.checkOrigin(req))
}

func TestStoppedHubReleasesClients(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	served := make(chan struct{}, 4)
	pumped := make(chan struct{}, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		served <- struct{}{}
	})
	mux.HandleFunc("GET /raw", func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{hub: hub, conn: conn, send: make(chan []byte, 1), curves: map[string]bool{}}
		c.readPump()
		pumped <- struct{}{}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	live := dial(t, srv, "")
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS did not return while the hub was running")
	}

	raw, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/raw", nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The live client is closed by the hub.
	require.NoError(t, live.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = live.ReadMessage()
	assert.Error(t, err)

	// A client disconnecting after shutdown does not block on unregister.
	raw.Close()
	select {
	case <-pumped:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump blocked after hub stopped")
	}

	// New connections after shutdown are closed instead of blocking on register.
	late, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer late.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked after hub stopped")
	}
}
