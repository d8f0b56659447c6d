package chat

import (
	"Atelier/internal/model"
	"context"
	log "log/slog"
	"sync"
)

// UnreadTracker 各会话未读数，与当前打开的会话无关
type UnreadTracker struct {
	store    UnreadStore
	messages *MessageLog
	viewer   Identity

	mu     sync.Mutex
	counts map[uint64]int
}

func NewUnreadTracker(store UnreadStore, messages *MessageLog, viewer Identity) *UnreadTracker {
	return &UnreadTracker{
		store:    store,
		messages: messages,
		viewer:   viewer,
		counts:   make(map[uint64]int),
	}
}

// RefreshAll 以存储为准重算全部未读数
func (t *UnreadTracker) RefreshAll(ctx context.Context) (map[uint64]int, error) {
	counts, err := t.store.CountUnread(ctx, t.viewer)
	if err != nil {
		log.ErrorContext(ctx, "count unread failed", "user_id", t.viewer.ID, "err", err)
		return nil, transient("refresh unread", err)
	}

	t.mu.Lock()
	t.counts = make(map[uint64]int, len(counts))
	for id, n := range counts {
		if n > 0 {
			t.counts[id] = n
		}
	}
	t.mu.Unlock()
	return t.Counts(), nil
}

// MarkRead 先本地清零并翻转，再持久化；持久化失败由下一次 RefreshAll 修正
func (t *UnreadTracker) MarkRead(ctx context.Context, thread *model.Thread) error {
	if t.viewer.ReadSideOf(thread) == ReadNone {
		return nil
	}
	if t.messages != nil {
		t.messages.MarkReadLocal(thread, t.viewer)
	}

	t.mu.Lock()
	delete(t.counts, thread.ID)
	t.mu.Unlock()

	if _, err := t.store.MarkRead(ctx, thread, t.viewer); err != nil {
		log.WarnContext(ctx, "persist read state failed", "thread_id", thread.ID, "err", err)
		return transient("mark read", err)
	}
	return nil
}

// Observe 非当前会话收到发给自己的新消息时 +1
func (t *UnreadTracker) Observe(thread *model.Thread, msg model.Message, activeThreadID uint64) {
	if msg.IsRead || msg.ThreadID == activeThreadID || !t.viewer.Receives(thread, &msg) {
		return
	}
	t.mu.Lock()
	t.counts[msg.ThreadID]++
	t.mu.Unlock()
}

// Count 单个会话未读数
func (t *UnreadTracker) Count(threadID uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[threadID]
}

// Counts 未读数快照
func (t *UnreadTracker) Counts() map[uint64]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[uint64]int, len(t.counts))
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}

// Total 未读总数
func (t *UnreadTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}
