package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ranqly/contest-engine/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: ограничить список доверенных Origin перед продом.
		return true
	},
}

type WebSocketHandler struct {
	hub *realtime.Hub
}

func NewWebSocketHandler(hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeWs подписывает клиента на события конкурса:
// GET /ws/contests/{contestID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP-ошибку клиенту.
		slog.Warn("websocket upgrade failed",
			slog.Int("contest_id", contestID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, contestID)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
