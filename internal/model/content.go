package model

import "time"

// Content is a saved item as produced by content extraction. It is the
// boundary type between the classification engine and the content store.
type Content struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Text    string    `json:"text,omitempty"`
	URL     string    `json:"url,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
