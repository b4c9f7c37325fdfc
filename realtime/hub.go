package realtime

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
)

// Message — конверт событий, уходящих подписчикам комнаты конкурса.
type Message struct {
	Type    string      `json:"type"` // PHASE_CHANGED, ENTRY_SUBMITTED, CONTEST_FINALIZED
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

// Hub держит комнаты подписчиков: одна комната на конкурс. Подписка
// только на чтение, входящие сообщения клиентов игнорируются.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", slog.String("room", client.room))

		case client := <-h.Unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, registered := clients[client]; registered {
					client.closeSend()
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", slog.String("room", client.room))
		}
	}
}

// RoomID строит имя комнаты конкурса.
func RoomID(contestID int) string {
	return "contest_" + strconv.Itoa(contestID)
}

// BroadcastToContest реализует services.Broadcaster. Медленные клиенты
// пропускаются, а не блокируют рассылку.
func (h *Hub) BroadcastToContest(contestID int, messageType string, payload interface{}) {
	room := RoomID(contestID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}

	raw, err := json.Marshal(Message{Type: messageType, Payload: payload, RoomID: room})
	if err != nil {
		h.logger.Error("failed to marshal hub message",
			slog.String("room", room), slog.Any("error", err))
		return
	}

	for client := range clients {
		client.trySend(raw)
	}
}
