// Package handlers exposes the room operations over HTTP and feeds live
// snapshots to websocket clients.
package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/collab"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/share"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// RoomHandler serves the room API. It keeps one session per active room and
// reuses it across requests, so every client of this server shares the same
// synchronizer and websocket hub.
type RoomHandler struct {
	store    store.RemoteStore
	layout   collab.Layout
	interval time.Duration
	baseURL  string
	creds    *share.Credentials

	mu       sync.Mutex
	sessions map[string]*roomSession
}

type roomSession struct {
	session *collab.Session
	hub     *hub
}

// RoomHandlerConfig wires the handler to its backend.
type RoomHandlerConfig struct {
	Store        store.RemoteStore
	Layout       collab.Layout
	PollInterval time.Duration
	// BaseURL is the public URL invite links point at.
	BaseURL string
	// Credentials, when set, are embedded in group invite links.
	Credentials *share.Credentials
}

func NewRoomHandler(cfg RoomHandlerConfig) *RoomHandler {
	return &RoomHandler{
		store:    cfg.Store,
		layout:   cfg.Layout,
		interval: cfg.PollInterval,
		baseURL:  cfg.BaseURL,
		creds:    cfg.Credentials,
		sessions: make(map[string]*roomSession),
	}
}

// Register mounts every room route on the echo instance.
func (h *RoomHandler) Register(e *echo.Echo) {
	e.POST("/rooms", h.CreateRoom)
	e.POST("/rooms/join", h.JoinByLink)
	e.GET("/rooms/:id", h.GetRoom)
	e.POST("/rooms/:id/todos", h.AddTodo)
	e.POST("/rooms/:id/todos/:todoID/toggle", h.ToggleTodo)
	e.DELETE("/rooms/:id/todos/completed", h.ClearCompleted)
	e.DELETE("/rooms/:id/todos/:todoID", h.DeleteTodo)
	e.GET("/rooms/:id/link", h.InviteLink)
	e.GET("/rooms/:id/live", h.Live)
	e.DELETE("/rooms/:id/session", h.LeaveRoom)
}

type roomResponse struct {
	Room      *models.Room `json:"room"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	State     string       `json:"state"`
}

func (h *RoomHandler) roomJSON(c echo.Context, code int, rs *roomSession) error {
	room := rs.session.Room()
	return c.JSON(code, roomResponse{
		Room:      room,
		Total:     len(room.Items),
		Completed: room.CompletedCount(),
		State:     rs.session.Synchronizer().State().String(),
	})
}

// CreateRoom generates a room code, seeds an empty remote document, and
// starts synchronizing.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	hub := newHub()
	session := collab.NewSession(h.store, h.layout,
		collab.WithPollInterval(h.interval),
		collab.WithOnChange(hub.broadcast),
	)
	room, err := session.Create(c.Request().Context(), req.Name)
	if err != nil {
		return h.mapError(err)
	}

	rs := &roomSession{session: session, hub: hub}
	h.mu.Lock()
	h.sessions[room.ID] = rs
	h.mu.Unlock()

	return h.roomJSON(c, http.StatusCreated, rs)
}

// seeder is implemented by stores that can absorb an embedded snapshot, the
// serverless variant's way of "joining": the list travels inside the link.
type seeder interface {
	Seed(key string, doc *models.Document) error
}

// JoinByLink joins whatever a pasted invite link points at. Snapshot links
// seed the store with the embedded document first; a fresh link with no
// snapshot and no id is rejected.
func (h *RoomHandler) JoinByLink(c echo.Context) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	link, err := share.ParseJoinLink(req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unusable invite link")
	}

	if link.Snapshot != nil {
		sd, ok := h.store.(seeder)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "this backend does not accept snapshot links")
		}
		id := h.layout.NormalizeID(link.RoomID)
		if err := sd.Seed(h.layout.Key(id), link.Snapshot); err != nil {
			return h.mapError(err)
		}
	}

	rs, err := h.joinSession(c, link.RoomID)
	if err != nil {
		return h.mapError(err)
	}
	return h.roomJSON(c, http.StatusOK, rs)
}

// GetRoom joins (or returns the already-joined) room and responds with its
// current snapshot.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	return h.roomJSON(c, http.StatusOK, rs)
}

// AddTodo appends a new item. Blank text is rejected before the list is
// touched.
func (h *RoomHandler) AddTodo(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := rs.session.Synchronizer().Add(req.Text); err != nil {
		if errors.Is(err, models.ErrEmptyText) {
			return echo.NewHTTPError(http.StatusBadRequest, "todo text must not be empty")
		}
		return h.mapError(err)
	}
	return h.roomJSON(c, http.StatusCreated, rs)
}

// ToggleTodo flips an item's completion state. Unknown ids are a no-op, per
// protocol, and still return the current snapshot.
func (h *RoomHandler) ToggleTodo(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	rs.session.Synchronizer().Toggle(c.Param("todoID"))
	return h.roomJSON(c, http.StatusOK, rs)
}

// DeleteTodo removes one item. Deleting a missing item reports a
// user-visible message rather than an error.
func (h *RoomHandler) DeleteTodo(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	if !rs.session.Synchronizer().Delete(c.Param("todoID")) {
		return c.JSON(http.StatusOK, map[string]string{"message": "nothing to delete"})
	}
	return h.roomJSON(c, http.StatusOK, rs)
}

// ClearCompleted removes every completed item and reports the count. An
// empty sweep is a no-op with a message, not an error.
func (h *RoomHandler) ClearCompleted(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	removed := rs.session.Synchronizer().ClearCompleted()
	if removed == 0 {
		return c.JSON(http.StatusOK, map[string]any{
			"removed": 0,
			"message": "no completed todos",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"removed": removed})
}

// InviteLink builds a shareable join URL. mode=room gives the plain link,
// mode=snapshot embeds the whole list, mode=group hides the store
// credentials in the fragment.
func (h *RoomHandler) InviteLink(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	room := rs.session.Room()

	var link string
	switch mode := c.QueryParam("mode"); mode {
	case "", "room":
		link, err = share.JoinURL(h.baseURL, room.ID)
	case "snapshot":
		link, err = share.SnapshotURL(h.baseURL, models.NewDocument(room))
	case "group":
		if h.creds == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "this backend has no credentials to share")
		}
		link, err = share.GroupURL(h.baseURL, room.ID, *h.creds)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown link mode")
	}
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": link})
}

// Live upgrades to a websocket and streams room snapshots: one immediately,
// then one per applied change until the client or the session goes away.
func (h *RoomHandler) Live(c echo.Context) error {
	rs, err := h.joinSession(c, c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	rs.hub.add(conn)
	if err := conn.WriteJSON(rs.session.Room()); err != nil {
		rs.hub.remove(conn)
		return nil
	}

	// Reader loop only notices the client going away.
	go func() {
		defer rs.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// LeaveRoom stops the room's synchronizer and drops its websocket clients.
func (h *RoomHandler) LeaveRoom(c echo.Context) error {
	id := h.layout.NormalizeID(c.Param("id"))
	h.mu.Lock()
	rs, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}

	// Cancel timer/subscription before tearing down the hub.
	rs.session.Leave()
	rs.hub.closeAll()
	return c.NoContent(http.StatusNoContent)
}

// joinSession returns the active session for an identifier, joining the room
// on first contact.
func (h *RoomHandler) joinSession(c echo.Context, identifier string) (*roomSession, error) {
	id := h.layout.NormalizeID(identifier)

	h.mu.Lock()
	if rs, ok := h.sessions[id]; ok {
		h.mu.Unlock()
		return rs, nil
	}
	h.mu.Unlock()

	hub := newHub()
	session := collab.NewSession(h.store, h.layout,
		collab.WithPollInterval(h.interval),
		collab.WithOnChange(hub.broadcast),
	)
	room, err := session.Join(c.Request().Context(), identifier)
	if err != nil {
		return nil, err
	}

	rs := &roomSession{session: session, hub: hub}
	h.mu.Lock()
	if existing, ok := h.sessions[room.ID]; ok {
		// Lost the race to another joiner; keep theirs.
		h.mu.Unlock()
		session.Leave()
		return existing, nil
	}
	h.sessions[room.ID] = rs
	h.mu.Unlock()
	return rs, nil
}

// mapError translates the store error taxonomy onto HTTP statuses.
func (h *RoomHandler) mapError(err error) error {
	switch {
	case errors.Is(err, collab.ErrRoomNotFound), errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	case errors.Is(err, store.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "credential rejected, reconfigure and retry")
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, collab.ErrNoStore):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no store configured")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, "remote store unreachable")
	}
	return nil
}
