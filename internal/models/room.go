package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Room is a named synchronization scope holding one ordered list of items,
// newest first.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
}

// Add validates text, prepends a new item, and returns it.
func (r *Room) Add(text string) (Item, error) {
	item, err := NewItem(text)
	if err != nil {
		return Item{}, err
	}
	r.Items = append([]Item{item}, r.Items...)
	return item, nil
}

// Toggle flips the completion state of the item with the given id and keeps
// completedAt consistent with it. Unknown ids are a silent no-op.
func (r *Room) Toggle(id string) bool {
	for i := range r.Items {
		if r.Items[i].ID != id {
			continue
		}
		r.Items[i].Completed = !r.Items[i].Completed
		if r.Items[i].Completed {
			now := time.Now().UTC()
			r.Items[i].CompletedAt = &now
		} else {
			r.Items[i].CompletedAt = nil
		}
		return true
	}
	return false
}

// Delete removes the item with the given id.
func (r *Room) Delete(id string) bool {
	for i := range r.Items {
		if r.Items[i].ID == id {
			r.Items = append(r.Items[:i], r.Items[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCompleted removes every completed item, preserving the order of the
// rest, and returns how many were removed.
func (r *Room) ClearCompleted() int {
	kept := r.Items[:0]
	removed := 0
	for _, item := range r.Items {
		if item.Completed {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	r.Items = kept
	return removed
}

// CompletedCount returns the number of completed items.
func (r *Room) CompletedCount() int {
	n := 0
	for _, item := range r.Items {
		if item.Completed {
			n++
		}
	}
	return n
}

// ItemsEqual reports deep structural equality of two item lists. Comparison
// goes through the JSON form so that a list that round-tripped through a
// remote store compares equal to the local one.
func ItemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
