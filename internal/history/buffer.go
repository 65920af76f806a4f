// Package history keeps a short in-memory tail of each conversation. The
// tail is attached to archived abuse reports so a moderator sees what was
// actually said; it is best-effort evidence, never a durable transcript.
package history

import (
	"sync"
	"time"
)

// TailSize is the number of recent messages retained per chat.
const TailSize = 10

// Message is one relayed message in a chat tail.
type Message struct {
	From string `json:"from"` // sender's user ID
	Text string `json:"text"`
	Ts   int64  `json:"ts"` // unix timestamp
}

// Buffer stores the last TailSize messages per chat ID. Goroutine-safe;
// each chat uses a fixed-size ring internally.
type Buffer struct {
	mu    sync.RWMutex
	rings map[string]*ring
}

type ring struct {
	items [TailSize]Message
	pos   int
	count int
}

// NewBuffer creates an empty history buffer.
func NewBuffer() *Buffer {
	return &Buffer{rings: make(map[string]*ring)}
}

// Record appends a relayed message to the chat's tail, evicting the oldest
// entry once the ring is full.
func (b *Buffer) Record(chatID, from, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[chatID]
	if !ok {
		r = &ring{}
		b.rings[chatID] = r
	}
	r.items[r.pos] = Message{From: from, Text: text, Ts: time.Now().Unix()}
	r.pos = (r.pos + 1) % TailSize
	if r.count < TailSize {
		r.count++
	}
}

// Tail returns the chat's recent messages in chronological order, oldest
// first. Unknown chats yield an empty slice.
func (b *Buffer) Tail(chatID string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[chatID]
	if !ok {
		return []Message{}
	}
	out := make([]Message, r.count)
	start := (r.pos - r.count + TailSize) % TailSize
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(start+i)%TailSize]
	}
	return out
}

// Drop discards the tail for a chat. Called once a chat can no longer be
// reported (both sides have moved on past the report window).
func (b *Buffer) Drop(chatID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rings, chatID)
}

// Len returns the number of chats currently holding a tail.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rings)
}
