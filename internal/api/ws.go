package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// FrameEnvelope is the CBOR body of every binary websocket message.
type FrameEnvelope struct {
	Seq       uint64 `cbor:"seq"`
	SessionID string `cbor:"session_id"`
	Width     int    `cbor:"width"`
	Height    int    `cbor:"height"`
	Format    string `cbor:"format"`
	UnixNano  int64  `cbor:"ts"`
	Data      []byte `cbor:"data"`
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subID   string
}

type wsHub struct {
	frames   *FrameHub
	capture  Capture
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*wsClient
}

func newWSHub(frames *FrameHub, c Capture, logger *slog.Logger) *wsHub {
	return &wsHub{
		frames:  frames,
		capture: c,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]*wsClient),
	}
}

// handleFramesWS streams converted frames as CBOR envelopes. The first
// message is a JSON hello describing the current stream.
func (s *Server) handleFramesWS(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		err := checkCredentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"), s.options.AuthUsername, s.options.AuthPassword)
		if err != nil {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}
	s.ws.serve(w, r)
}

func (h *wsHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	subID, frames := h.frames.Subscribe()
	client := &wsClient{conn: conn, subID: subID}

	h.mu.Lock()
	h.clients[conn] = client
	h.mu.Unlock()
	h.logger.Info("Frame websocket connected", "client_id", subID, "remote_addr", r.RemoteAddr)

	_ = h.writeJSON(client, h.hello(subID))

	done := make(chan struct{})
	go h.forward(client, frames, done)
	go func() {
		defer close(done)
		defer h.removeClient(client)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request map[string]any
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request["type"] == "status_request" {
				_ = h.writeJSON(client, h.hello(subID))
			}
		}
	}()
}

// forward writes frames and keepalive pings until the read side ends.
func (h *wsHub) forward(client *wsClient, frames <-chan Frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := h.writeMessage(client, websocket.PingMessage, nil); err != nil {
				_ = client.conn.Close()
				return
			}
		case f, ok := <-frames:
			if !ok {
				_ = client.conn.Close()
				return
			}
			payload, err := cbor.Marshal(FrameEnvelope{
				Seq:       f.Seq,
				SessionID: f.SessionID,
				Width:     f.Width,
				Height:    f.Height,
				Format:    f.Format,
				UnixNano:  f.Time.UnixNano(),
				Data:      f.Data,
			})
			if err != nil {
				h.logger.Error("Failed to encode frame", "error", err)
				continue
			}
			if err := h.writeMessage(client, websocket.BinaryMessage, payload); err != nil {
				_ = client.conn.Close()
				return
			}
		}
	}
}

func (h *wsHub) hello(clientID string) map[string]any {
	st := h.capture.Status()
	return map[string]any{
		"type":       "hello",
		"client_id":  clientID,
		"running":    st.Running,
		"session_id": st.SessionID,
		"width":      st.Params.View.W,
		"height":     st.Params.View.H,
		"format":     st.Params.Format.String(),
	}
}

func (h *wsHub) removeClient(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client.conn]
	delete(h.clients, client.conn)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.frames.Unsubscribe(client.subID)
	_ = client.conn.Close()
	h.logger.Info("Frame websocket disconnected", "client_id", client.subID)
}

func (h *wsHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.removeClient(c)
	}
}

func (h *wsHub) writeJSON(client *wsClient, payload any) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return client.conn.WriteJSON(payload)
}

func (h *wsHub) writeMessage(client *wsClient, messageType int, payload []byte) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return client.conn.WriteMessage(messageType, payload)
}
