package handlers

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

// hub fans one room's snapshots out to every attached websocket client. It
// is the rendering collaborator of the synchronizer: each applied change,
// local or remote, is broadcast as a full room snapshot.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// broadcast sends the room snapshot to every client, dropping clients whose
// connection errors.
func (h *hub) broadcast(room *models.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(room); err != nil {
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// closeAll disconnects every client, used on leave so no broadcast can hit a
// torn-down session.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
