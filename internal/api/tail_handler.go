package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/technosupport/ts-hubmon/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

const tailBatchMax = 256

// tailMessage is one websocket payload: a batch of envelopes, with gap
// set when entries were evicted before this client read them.
type tailMessage struct {
	Gap    bool                 `json:"gap,omitempty"`
	Events []broadcast.Envelope `json:"events"`
}

// Tail streams live events over a websocket. Each client gets its own
// cursor; a client too slow for the ring is told about the gap and
// resumed from the oldest retained event rather than disconnected.
func (h *Handler) Tail(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.Queue.Subscribe()
	defer sub.Close()

	// Reader goroutine: we send only, but reads must drain for the
	// close handshake and to notice a dead peer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		notify := h.Queue.Notify()
		batch, gap := sub.Poll(tailBatchMax)
		if len(batch) == 0 && !gap {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case <-notify:
				continue
			}
		}

		payload, err := json.Marshal(tailMessage{Gap: gap, Events: batch})
		if err != nil {
			log.Printf("[ERROR] Tail: marshal batch: %v", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
