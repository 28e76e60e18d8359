package models

import "time"

// MemoryRecord is an indexed past exchange. Records are never mutated.
type MemoryRecord struct {
	ID           string    `json:"id"`
	Vector       []float32 `json:"-"`
	Contact      string    `json:"contact"`
	Date         string    `json:"date,omitempty"`
	TheirMessage string    `json:"their_message"`
	YourReply    string    `json:"your_reply"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Memory is a retrieved record with its adjusted similarity score
type Memory struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}
