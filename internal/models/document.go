package models

import "time"

// Document is the externally persisted form of a room. Every write replaces
// the whole document; the last successful write wins.
type Document struct {
	RoomID      string    `firestore:"roomId" json:"roomId"`
	Name        string    `firestore:"name,omitempty" json:"name,omitempty"`
	Todos       []Item    `firestore:"todos" json:"todos"`
	LastUpdated time.Time `firestore:"lastUpdated" json:"lastUpdated"`
}

// NewDocument snapshots a room into its persisted form.
func NewDocument(r *Room) *Document {
	return &Document{
		RoomID:      r.ID,
		Name:        r.Name,
		Todos:       r.Items,
		LastUpdated: time.Now().UTC(),
	}
}

// Room rebuilds an in-memory room from a persisted document.
func (d *Document) Room() *Room {
	items := d.Todos
	if items == nil {
		items = []Item{}
	}
	return &Room{
		ID:    d.RoomID,
		Name:  d.Name,
		Items: items,
	}
}
