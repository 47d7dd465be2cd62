package app

import (
	"sync"

	"github.com/dkeye/lanhub/internal/domain"
)

// History keeps the last few chat messages for late joiners.
type History struct {
	mu    sync.Mutex
	buf   []domain.ChatMessage
	start int
	size  int
}

// NewHistory keeps up to capacity messages; capacity <= 0 keeps nothing.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{buf: make([]domain.ChatMessage, capacity)}
}

func (h *History) Add(m domain.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = m
		h.size++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// Snapshot returns the retained messages, oldest first.
func (h *History) Snapshot() []domain.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ChatMessage, h.size)
	for i := range h.size {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
