package collab

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/store"
)

// roomCodeAlphabet avoids visually ambiguous characters (0/O, 1/l/I).
const roomCodeAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

const roomCodeLen = 6

// ErrNoStore is returned when a session is started without a configured
// store adapter; the caller must supply credentials first.
var ErrNoStore = errors.New("no remote store configured")

// ErrRoomNotFound is returned when a join identifier resolves to neither a
// room id nor a room name.
var ErrRoomNotFound = errors.New("room not found")

// NewRoomCode generates a short shareable room code. Collisions are accepted
// and not checked, matching the protocol's weak guarantees.
func NewRoomCode() string {
	b := make([]byte, roomCodeLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, roomCodeLen)
	for i, x := range b {
		out[i] = roomCodeAlphabet[int(x)%len(roomCodeAlphabet)]
	}
	return string(out)
}

// Layout describes how room ids map onto store keys for one variant.
type Layout struct {
	// Dir is the key directory, e.g. "rooms" or "data".
	Dir string
	// FilePrefix is prepended to the id, e.g. "room-" or "group-".
	FilePrefix string
	// UppercaseIDs normalizes ids to uppercase (group variant).
	UppercaseIDs bool
	// SeedMissing makes Join create an empty document for an unknown id
	// instead of falling back to a name search.
	SeedMissing bool
}

// RoomLayout is the plain room variant: rooms/room-<id>.json, seeded on
// first join.
var RoomLayout = Layout{Dir: "rooms", FilePrefix: "room-", SeedMissing: true}

// GroupLayout is the named group variant: data/group-<id>.json, uppercase
// ids, name-search fallback on unknown ids.
var GroupLayout = Layout{Dir: "data", FilePrefix: "group-", UppercaseIDs: true}

// Key returns the store key for a room id.
func (l Layout) Key(id string) string {
	return l.Dir + "/" + l.FilePrefix + id + ".json"
}

// Prefix returns the key prefix shared by all rooms of this layout.
func (l Layout) Prefix() string {
	return l.Dir + "/"
}

// NormalizeID applies the layout's id normalization.
func (l Layout) NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if l.UppercaseIDs {
		id = strings.ToUpper(id)
	}
	return id
}

// Session drives the join/create/leave lifecycle for one room and owns its
// synchronizer.
type Session struct {
	store  store.RemoteStore
	layout Layout
	opts   []Option

	sync *Synchronizer
	room *models.Room
}

// NewSession prepares a disconnected session. Synchronizer options are
// forwarded when a room is created or joined.
func NewSession(st store.RemoteStore, layout Layout, opts ...Option) *Session {
	return &Session{store: st, layout: layout, opts: opts}
}

// Create generates a fresh room code, seeds an empty remote document, and
// connects. name is the optional display label of the group variant.
func (s *Session) Create(ctx context.Context, name string) (*models.Room, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if s.sync != nil {
		return nil, errors.New("session already active")
	}

	id := s.layout.NormalizeID(NewRoomCode())
	room := &models.Room{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Items:     []models.Item{},
		CreatedAt: time.Now().UTC(),
	}

	sync := NewSynchronizer(s.store, s.layout.Key(id), s.opts...)
	if err := sync.Connect(ctx, room); err != nil {
		return nil, err
	}
	s.sync = sync
	s.room = room
	return sync.Room(), nil
}

// Join resolves an identifier to a room and connects. The identifier is
// tried as a literal id first; on a miss, layouts without seeding fall back
// to a case-insensitive scan of room names under the layout prefix. The scan
// fails open: unreadable documents are skipped, and only a fully exhausted
// search reports ErrRoomNotFound.
func (s *Session) Join(ctx context.Context, identifier string) (*models.Room, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if s.sync != nil {
		return nil, errors.New("session already active")
	}

	id := s.layout.NormalizeID(identifier)
	if id == "" {
		return nil, ErrRoomNotFound
	}

	if _, _, err := s.store.Get(ctx, s.layout.Key(id)); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if !s.layout.SeedMissing {
			found, err := s.findByName(ctx, identifier)
			if err != nil {
				return nil, err
			}
			if found == "" {
				return nil, ErrRoomNotFound
			}
			id = found
		}
		// Seeding layouts connect anyway; Connect writes the empty document.
	}

	sync := NewSynchronizer(s.store, s.layout.Key(id), s.opts...)
	seed := &models.Room{ID: id, Items: []models.Item{}, CreatedAt: time.Now().UTC()}
	if err := sync.Connect(ctx, seed); err != nil {
		return nil, err
	}
	s.sync = sync
	s.room = sync.Room()
	return s.room, nil
}

// findByName scans every document under the layout prefix for a
// case-insensitive name match and returns the matching room id.
func (s *Session) findByName(ctx context.Context, name string) (string, error) {
	keys, err := s.store.ListKeys(ctx, s.layout.Prefix())
	if err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			return "", err
		}
		// Best effort: a failed listing is a not-found, not an error.
		return "", nil
	}
	for _, key := range keys {
		doc, _, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		if doc.Name != "" && strings.EqualFold(doc.Name, strings.TrimSpace(name)) {
			return doc.RoomID, nil
		}
	}
	return "", nil
}

// Leave disconnects the synchronizer and ends the session.
func (s *Session) Leave() {
	if s.sync != nil {
		s.sync.Leave()
		s.sync = nil
		s.room = nil
	}
}

// Synchronizer returns the active synchronizer, nil when disconnected.
func (s *Session) Synchronizer() *Synchronizer {
	return s.sync
}

// Room returns a copy of the current room, nil when disconnected.
func (s *Session) Room() *models.Room {
	if s.sync == nil {
		return nil
	}
	return s.sync.Room()
}

// Active reports whether the session is connected to a room.
func (s *Session) Active() bool {
	return s.sync != nil
}
