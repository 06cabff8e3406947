package model

import (
	"strconv"
	"time"
)

// Todo is a user-created task item identified by title and owning user id.
type Todo struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key is the tree key a todo is published under.
func (t Todo) Key() string {
	return strconv.Itoa(t.ID)
}

// Wire returns the JSON-shaped form of the todo used in patch payloads.
func (t Todo) Wire() map[string]any {
	return map[string]any{
		"id":        t.ID,
		"userId":    t.UserID,
		"title":     t.Title,
		"completed": t.Completed,
	}
}

// Entry is a todo as published into a client's tree: its key and payload.
type Entry struct {
	Key  string
	Data map[string]any
}

func (t Todo) Entry() Entry {
	return Entry{Key: t.Key(), Data: t.Wire()}
}
