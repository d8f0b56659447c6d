// Package chattest 提供聊天端口的内存实现，供测试使用
package chattest

import (
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"context"
	"sort"
	"sync"
	"time"
)

// Store 内存版 ThreadStore / MessageStore / UnreadStore
type Store struct {
	mu       sync.Mutex
	threads  map[uint64]*model.Thread
	byKey    map[string]uint64
	messages map[uint64][]*model.Message

	nextThreadID  uint64
	nextMessageID uint64
	clock         func() time.Time

	// Publish 非空时，写入与已读更新会以事件形式发出
	Publish func(chat.Event)

	// 故障注入
	FailCreate   error
	FailList     error
	FailCount    error
	FailMarkRead error
	// MarkReadGate 非空时 MarkRead 先等待它关闭，用于构造并发场景
	MarkReadGate chan struct{}
	// ConflictOnce 为 true 时，下一次 UpsertThread 先写入再返回冲突，模拟另一进程抢先
	ConflictOnce bool

	UpsertCalls   int
	MarkReadCalls int
}

func NewStore() *Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s := &Store{
		threads:       make(map[uint64]*model.Thread),
		byKey:         make(map[string]uint64),
		messages:      make(map[uint64][]*model.Message),
		nextThreadID:  1,
		nextMessageID: 1,
	}
	s.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

// SetNextThreadID 指定下一个会话的 ID
func (s *Store) SetNextThreadID(id uint64) {
	s.mu.Lock()
	s.nextThreadID = id
	s.mu.Unlock()
}

// SetNextMessageID 指定下一条消息的 ID
func (s *Store) SetNextMessageID(id uint64) {
	s.mu.Lock()
	s.nextMessageID = id
	s.mu.Unlock()
}

// SetClock 替换时间源
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	s.clock = fn
	s.mu.Unlock()
}

// AddThread 直接写入一个会话
func (s *Store) AddThread(kind int8, a, b uint64) *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.insertThreadLocked(&model.Thread{Kind: kind, ParticipantA: a, ParticipantB: b})
	cp := *t
	return &cp
}

// Seed 直接写入一条消息，不发布事件
func (s *Store) Seed(msg model.Message) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == 0 {
		msg.ID = s.nextMessageID
		s.nextMessageID++
	} else if msg.ID >= s.nextMessageID {
		s.nextMessageID = msg.ID + 1
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock()
	}
	cp := msg
	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], &cp)
	if t, ok := s.threads[msg.ThreadID]; ok && cp.CreatedAt.After(t.LastActivityAt) {
		t.LastActivityAt = cp.CreatedAt
	}
	out := cp
	return &out
}

// ThreadCount 会话总数
func (s *Store) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// StoredMessages 存储中的消息副本
func (s *Store) StoredMessages(threadID uint64) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, 0, len(s.messages[threadID]))
	for _, m := range s.messages[threadID] {
		out = append(out, *m)
	}
	return out
}

func (s *Store) insertThreadLocked(t *model.Thread) *model.Thread {
	cp := *t
	cp.ID = s.nextThreadID
	s.nextThreadID++
	if cp.PairKey == "" {
		cp.PairKey = model.PairKey(cp.Kind, cp.ParticipantA, cp.ParticipantB)
	}
	now := s.clock()
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.LastActivityAt.IsZero() {
		cp.LastActivityAt = now
	}
	s.threads[cp.ID] = &cp
	s.byKey[cp.PairKey] = cp.ID
	return &cp
}

func (s *Store) ListThreads(_ context.Context, viewer chat.Identity) ([]*model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]*model.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		if viewer.CanView(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetThread(_ context.Context, threadID uint64) (*model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, &chat.NotFoundError{ThreadID: threadID}
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpsertThread(_ context.Context, thread *model.Thread) (*model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++

	if s.ConflictOnce {
		s.ConflictOnce = false
		if _, ok := s.byKey[thread.PairKey]; !ok {
			s.insertThreadLocked(thread)
		}
		return nil, &chat.ConflictError{Key: thread.PairKey}
	}
	if id, ok := s.byKey[thread.PairKey]; ok {
		cp := *s.threads[id]
		return &cp, nil
	}
	t := s.insertThreadLocked(thread)
	cp := *t
	return &cp, nil
}

func (s *Store) FindThreadByPairKey(_ context.Context, pairKey string) (*model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[pairKey]
	if !ok {
		return nil, &chat.NotFoundError{}
	}
	cp := *s.threads[id]
	return &cp, nil
}

func (s *Store) CreateMessage(_ context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	if s.FailCreate != nil {
		err := s.FailCreate
		s.mu.Unlock()
		return nil, err
	}
	cp := *msg
	cp.ID = s.nextMessageID
	s.nextMessageID++
	cp.CreatedAt = s.clock()
	s.messages[cp.ThreadID] = append(s.messages[cp.ThreadID], &cp)
	if t, ok := s.threads[cp.ThreadID]; ok {
		t.LastActivityAt = cp.CreatedAt
	}
	out := cp
	publish := s.Publish
	s.mu.Unlock()

	if publish != nil {
		publish(chat.Event{Type: chat.EventInserted, Message: out})
	}
	return &out, nil
}

func (s *Store) ListMessages(_ context.Context, threadID uint64) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]*model.Message, 0, len(s.messages[threadID]))
	for _, m := range s.messages[threadID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) CountUnread(_ context.Context, viewer chat.Identity) (map[uint64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCount != nil {
		return nil, s.FailCount
	}
	out := make(map[uint64]int)
	for id, t := range s.threads {
		for _, m := range s.messages[id] {
			if !m.IsRead && viewer.Receives(t, m) {
				out[id]++
			}
		}
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, thread *model.Thread, reader chat.Identity) (int64, error) {
	if s.MarkReadGate != nil {
		<-s.MarkReadGate
	}
	s.mu.Lock()
	s.MarkReadCalls++
	if s.FailMarkRead != nil {
		err := s.FailMarkRead
		s.mu.Unlock()
		return 0, err
	}
	var flipped []model.Message
	for _, m := range s.messages[thread.ID] {
		if !m.IsRead && reader.Receives(thread, m) {
			m.IsRead = true
			flipped = append(flipped, *m)
		}
	}
	publish := s.Publish
	s.mu.Unlock()

	if publish != nil {
		for _, m := range flipped {
			publish(chat.Event{Type: chat.EventUpdated, Message: m})
		}
	}
	return int64(len(flipped)), nil
}
