package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/js-playground/internal/bridge"
	"github.com/sakif/js-playground/internal/workspace"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// The zero CheckOrigin rejects cross-origin upgrades; only the playground's
// own shell may relay frames.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleSocket serves GET /api/workspaces/{id}/socket.
//
// Inbound text frames are relayed sandbox messages and go straight to the
// bridge; nothing is ever written back about them. Outbound frames are
// workspace events as JSON. The current document is sent first so a
// reconnecting editor can load it without polling.
func (h *WorkspaceHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.metrics.SocketOpened()
	defer h.metrics.SocketClosed()

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go h.writeEvents(conn, ws, events, done)

	conn.SetReadLimit(bridge.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", slog.String("error", err.Error()))
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		ws.Receive(frame)
	}

	unsubscribe()
	<-done
}

func (h *WorkspaceHandler) writeEvents(conn *websocket.Conn, ws *workspace.Workspace, events <-chan workspace.Event, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if st := ws.State(); st.Document != nil {
		hello := workspace.Event{Type: workspace.EventReload, Document: st.Document, Problems: st.Problems}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(hello); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "workspace closed"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
