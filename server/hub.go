package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/types"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame sent to websocket subscribers.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    types.Event `json:"data"`
}

type subscriber struct {
	send chan types.Event
}

// Hub fans analyzer progress events out to the websocket clients watching a request id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
	log  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), log: log}
}

// Report implements types.Reporter. Slow subscribers lose events rather than stall the analysis.
func (h *Hub) Report(ev types.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.RequestID] {
		select {
		case sub.send <- ev:
		default:
			h.log.Warn("dropping progress event for slow subscriber", "request_id", ev.RequestID, "stage", ev.Stage)
		}
	}
}

func (h *Hub) subscribe(requestID string) *subscriber {
	sub := &subscriber{send: make(chan types.Event, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[requestID] == nil {
		h.subs[requestID] = make(map[*subscriber]struct{})
	}
	h.subs[requestID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(requestID string, sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[requestID], sub)
	if len(h.subs[requestID]) == 0 {
		delete(h.subs, requestID)
	}
	h.mu.Unlock()
}

// Subscribers reports how many clients watch requestID.
func (h *Hub) Subscribers(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[requestID])
}

// ServeWS upgrades GET /ws?request_id=... and streams that request's events until "done".
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.subscribe(requestID)
	defer h.unsubscribe(requestID, sub)
	h.log.Debug("websocket subscribed", "request_id", requestID)

	// reads only detect the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{Type: "progress", Content: ev.Stage, Data: ev}); err != nil {
				h.log.Debug("websocket write failed", "request_id", requestID, "error", err)
				return
			}
			if ev.Stage == "done" {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}
