package chat

import (
	"Atelier/internal/model"
	"Atelier/internal/pkg/metrics"
	"context"
	log "log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	ReceiptRead = "read"
	ReceiptSent = "sent"
)

// AppliedFunc 消息合并后的回调，inserted 表示首次出现
type AppliedFunc func(msg model.Message, inserted bool)

type threadLog struct {
	items []*model.Message
	byID  map[uint64]*model.Message
}

// MessageLog 按会话缓存的有序消息，按 ID 幂等合并
type MessageLog struct {
	store MessageStore

	mu        sync.RWMutex
	threads   map[uint64]*threadLog
	onApplied AppliedFunc
}

func NewMessageLog(store MessageStore) *MessageLog {
	return &MessageLog{
		store:   store,
		threads: make(map[uint64]*threadLog),
	}
}

// OnApplied 注册合并回调，回调在锁外执行
func (l *MessageLog) OnApplied(fn AppliedFunc) {
	l.mu.Lock()
	l.onApplied = fn
	l.mu.Unlock()
}

// Append 先落库，再用存储返回的副本合并
func (l *MessageLog) Append(ctx context.Context, threadID, senderID uint64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if threadID == 0 {
		return nil, &ValidationError{Field: "thread_id", Reason: "must not be empty"}
	}

	stored, err := l.store.CreateMessage(ctx, &model.Message{
		ThreadID: threadID,
		SenderID: senderID,
		Content:  content,
	})
	if err != nil {
		log.ErrorContext(ctx, "append message failed", "thread_id", threadID, "err", err)
		return nil, transient("append message", err)
	}

	l.ApplyIncoming(stored)
	out := *stored
	return &out, nil
}

// ApplyIncoming 幂等合并，已存在的消息只允许 is_read 由 false 变为 true
func (l *MessageLog) ApplyIncoming(msg *model.Message) bool {
	if msg == nil || msg.ID == 0 || msg.ThreadID == 0 {
		log.Warn("drop malformed message payload", "message", msg)
		metrics.DroppedEvents.WithLabelValues("malformed").Inc()
		return false
	}

	l.mu.Lock()
	tl, ok := l.threads[msg.ThreadID]
	if !ok {
		tl = &threadLog{byID: make(map[uint64]*model.Message)}
		l.threads[msg.ThreadID] = tl
	}

	inserted := false
	cur, exists := tl.byID[msg.ID]
	if exists {
		if msg.IsRead && !cur.IsRead {
			cur.IsRead = true
		}
	} else {
		cp := *msg
		i := sort.Search(len(tl.items), func(i int) bool { return !tl.items[i].Before(&cp) })
		tl.items = append(tl.items, nil)
		copy(tl.items[i+1:], tl.items[i:])
		tl.items[i] = &cp
		tl.byID[cp.ID] = &cp
		cur = &cp
		inserted = true
	}
	snapshot := *cur
	hook := l.onApplied
	l.mu.Unlock()

	if inserted {
		metrics.AppliedMessages.WithLabelValues("inserted").Inc()
	} else {
		metrics.AppliedMessages.WithLabelValues("merged").Inc()
	}
	if hook != nil {
		hook(snapshot, inserted)
	}
	return true
}

// List 按 (created_at, id) 升序返回副本
func (l *MessageLog) List(threadID uint64) []*model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tl, ok := l.threads[threadID]
	if !ok {
		return []*model.Message{}
	}
	out := make([]*model.Message, 0, len(tl.items))
	for _, m := range tl.items {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// Get 按 ID 查找本地消息
func (l *MessageLog) Get(threadID, messageID uint64) (model.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if tl, ok := l.threads[threadID]; ok {
		if m, ok := tl.byID[messageID]; ok {
			return *m, true
		}
	}
	return model.Message{}, false
}

// MarkReadLocal 本地将发给 viewer 的未读消息置为已读，返回翻转数量
func (l *MessageLog) MarkReadLocal(thread *model.Thread, viewer Identity) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl, ok := l.threads[thread.ID]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range tl.items {
		if !m.IsRead && viewer.Receives(thread, m) {
			m.IsRead = true
			n++
		}
	}
	return n
}

// Reset 离开会话时释放缓存
func (l *MessageLog) Reset(threadID uint64) {
	l.mu.Lock()
	delete(l.threads, threadID)
	l.mu.Unlock()
}

// ReceiptFor 自己发出的消息显示已读/已发送，他人消息返回空
func ReceiptFor(msg *model.Message, viewerID uint64) string {
	if msg.SenderID != viewerID {
		return ""
	}
	if msg.IsRead {
		return ReceiptRead
	}
	return ReceiptSent
}
