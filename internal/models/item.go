package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyText is returned when an add is attempted with blank text.
var ErrEmptyText = errors.New("todo text must not be empty")

// Item represents a single todo entry in a room.
type Item struct {
	ID          string     `firestore:"id" json:"id"`
	Text        string     `firestore:"text" json:"text"`
	Completed   bool       `firestore:"completed" json:"completed"`
	CreatedAt   time.Time  `firestore:"createdAt" json:"createdAt"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// NewItem validates text and builds a fresh incomplete item.
func NewItem(text string) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, ErrEmptyText
	}
	return Item{
		ID:        uuid.New().String(),
		Text:      text,
		Completed: false,
		CreatedAt: time.Now().UTC(),
	}, nil
}
