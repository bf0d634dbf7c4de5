package notify

import (
	"log/slog"
	"sync"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

const defaultCapacity = 32

// Buffer keeps the notices of one wizard session until the next response drains them.
// The oldest notices are dropped once capacity is reached.
type Buffer struct {
	sessionID string
	capacity  int

	mu      sync.Mutex
	notices []domain.Notice
}

func NewBuffer(sessionID string, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{sessionID: sessionID, capacity: capacity}
}

func (b *Buffer) Notify(message string, level domain.NoticeLevel) {
	slog.Debug("wizard_notice", "session_id", b.sessionID, "level", string(level), "message", message)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == b.capacity {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, domain.Notice{Message: message, Level: level})
}

func (b *Buffer) Drain() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		return []domain.Notice{}
	}
	return out
}
