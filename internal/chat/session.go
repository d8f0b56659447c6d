package chat

import (
	"Atelier/internal/model"
	"context"
	log "log/slog"
	"sync"
	"sync/atomic"
)

// ChangeKind 会话状态变化类型
type ChangeKind string

const (
	ChangeThreads  ChangeKind = "threads"
	ChangeMessages ChangeKind = "messages"
	ChangeUnread   ChangeKind = "unread"
)

// Change 状态变化通知
type Change struct {
	Kind     ChangeKind
	ThreadID uint64
}

// Stores 会话依赖的存储端口
type Stores struct {
	Threads  ThreadStore
	Messages MessageStore
	Unread   UnreadStore
	Broker   Broker
	Roster   Roster
	Members  MemberDirectory
}

// Options 会话配置
type Options struct {
	AdministrationID uint64
	Labels           Labels
}

// ThreadSummary 目录中一条会话的展示数据
type ThreadSummary struct {
	Thread *model.Thread `json:"thread"`
	Label  Label         `json:"label"`
	Unread int           `json:"unread"`
}

// Session 一个在线用户的聊天状态
type Session struct {
	viewer    Identity
	directory *ThreadDirectory
	messages  *MessageLog
	unread    *UnreadTracker
	subs      *SubscriptionManager
	router    *ThreadRouter
	store     MessageStore

	active atomic.Uint64

	mu       sync.Mutex
	onChange func(Change)
}

func NewSession(viewer Identity, stores Stores, opts Options) *Session {
	messages := NewMessageLog(stores.Messages)
	unread := NewUnreadTracker(stores.Unread, messages, viewer)
	s := &Session{
		viewer:    viewer,
		directory: NewThreadDirectory(stores.Threads, viewer, opts.AdministrationID),
		messages:  messages,
		unread:    unread,
		subs:      NewSubscriptionManager(stores.Broker, messages, unread, viewer),
		router:    NewThreadRouter(stores.Roster, stores.Members, viewer, opts.AdministrationID, opts.Labels),
		store:     stores.Messages,
	}

	messages.OnApplied(func(msg model.Message, inserted bool) {
		if s.directory.Touch(msg.ThreadID, msg.CreatedAt) {
			s.emit(Change{Kind: ChangeThreads})
		}
		if inserted {
			if t, ok := s.directory.Get(msg.ThreadID); ok {
				s.unread.Observe(t, msg, s.Active())
			}
		}
		s.emit(Change{Kind: ChangeMessages, ThreadID: msg.ThreadID})
	})
	s.subs.OnRead(func(threadID uint64) {
		s.emit(Change{Kind: ChangeUnread, ThreadID: threadID})
	})
	return s
}

// OnChange 注册变化回调，回调不能阻塞
func (s *Session) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) emit(c Change) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (s *Session) Viewer() Identity { return s.viewer }
func (s *Session) Directory() *ThreadDirectory { return s.directory }
func (s *Session) Messages() *MessageLog { return s.messages }
func (s *Session) Unread() *UnreadTracker { return s.unread }
func (s *Session) Subscription() *SubscriptionManager { return s.subs }
func (s *Session) Router() *ThreadRouter { return s.router }

// Load 首次加载：目录、对方资料、未读数
func (s *Session) Load(ctx context.Context) error {
	threads, err := s.directory.List(ctx)
	if err != nil {
		return err
	}
	if err = s.router.Prime(ctx, threads); err != nil {
		log.WarnContext(ctx, "prime labels failed, using placeholders", "err", err)
	}
	if _, err = s.unread.RefreshAll(ctx); err != nil {
		return err
	}
	s.emit(Change{Kind: ChangeThreads})
	s.emit(Change{Kind: ChangeUnread})
	return nil
}

// Activate 打开会话：鉴权、订阅、拉取、合并、标记已读
func (s *Session) Activate(ctx context.Context, threadID uint64) error {
	thread, err := s.directory.Authorize(ctx, threadID)
	if err != nil {
		return err
	}

	if prev := s.active.Swap(threadID); prev != 0 && prev != threadID {
		s.messages.Reset(prev)
	}

	if err = s.subs.Attach(ctx, thread); err != nil {
		log.WarnContext(ctx, "push channel unavailable, falling back to polling", "thread_id", threadID, "err", err)
	}

	msgs, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		log.ErrorContext(ctx, "fetch messages failed", "thread_id", threadID, "err", err)
		return transient("list messages", err)
	}
	if s.active.Load() != threadID {
		log.DebugContext(ctx, "discard stale message fetch", "thread_id", threadID)
		return nil
	}
	for _, m := range msgs {
		s.messages.ApplyIncoming(m)
	}

	if err = s.unread.MarkRead(ctx, thread); err != nil {
		log.WarnContext(ctx, "mark read on activation failed", "thread_id", threadID, "err", err)
	}
	_ = s.router.Prime(ctx, []*model.Thread{thread})

	s.emit(Change{Kind: ChangeMessages, ThreadID: threadID})
	s.emit(Change{Kind: ChangeUnread, ThreadID: threadID})
	return nil
}

// Deactivate 关闭当前会话
func (s *Session) Deactivate() {
	if prev := s.active.Swap(0); prev != 0 {
		s.subs.Detach()
		s.messages.Reset(prev)
	}
}

// Active 当前打开的会话，0 表示没有
func (s *Session) Active() uint64 { return s.active.Load() }

// Live 当前会话是否有实时推送
func (s *Session) Live() bool { return s.subs.Live() }

// Send 向当前会话发送
func (s *Session) Send(ctx context.Context, content string) (*model.Message, error) {
	threadID := s.active.Load()
	if threadID == 0 {
		return nil, &ValidationError{Field: "thread_id", Reason: "no active thread"}
	}
	return s.messages.Append(ctx, threadID, s.viewer.ID, content)
}

// SendTo 向指定会话发送
func (s *Session) SendTo(ctx context.Context, threadID uint64, content string) (*model.Message, error) {
	if _, err := s.directory.Authorize(ctx, threadID); err != nil {
		return nil, err
	}
	return s.messages.Append(ctx, threadID, s.viewer.ID, content)
}

// StartConversation 发起或打开已有会话
func (s *Session) StartConversation(ctx context.Context, counterpartyID uint64, kind int8) (*model.Thread, error) {
	thread, err := s.directory.OpenOrCreate(ctx, s.viewer.ID, counterpartyID, kind)
	if err != nil {
		return nil, err
	}
	if err = s.router.Prime(ctx, []*model.Thread{thread}); err != nil {
		log.WarnContext(ctx, "prime label failed", "thread_id", thread.ID, "err", err)
	}
	if _, err = s.unread.RefreshAll(ctx); err != nil {
		log.WarnContext(ctx, "refresh unread after start failed", "err", err)
	}
	s.emit(Change{Kind: ChangeThreads})
	return thread, nil
}

// Poll 定期刷新目录与未读数，推送只覆盖当前会话；推送不可用时再补拉当前会话的消息
func (s *Session) Poll(ctx context.Context) error {
	if _, err := s.directory.List(ctx); err != nil {
		return err
	}
	if _, err := s.unread.RefreshAll(ctx); err != nil {
		return err
	}
	s.emit(Change{Kind: ChangeThreads})
	defer s.emit(Change{Kind: ChangeUnread})

	threadID := s.active.Load()
	if threadID == 0 || s.subs.Live() {
		return nil
	}
	msgs, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return transient("list messages", err)
	}
	if s.active.Load() != threadID {
		return nil
	}
	for _, m := range msgs {
		s.messages.ApplyIncoming(m)
	}
	// 打开中的会话收到的新消息视为已读
	thread, ok := s.directory.Get(threadID)
	if ok && s.unread.Count(threadID) > 0 {
		return s.unread.MarkRead(ctx, thread)
	}
	return nil
}

// Overview 目录快照，带显示名与未读数
func (s *Session) Overview() []ThreadSummary {
	threads := s.directory.Threads()
	counts := s.unread.Counts()
	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadSummary{
			Thread: t,
			Label:  s.router.LabelFor(t),
			Unread: counts[t.ID],
		})
	}
	return out
}

// Search 按对方名称过滤目录
func (s *Session) Search(term string) []*model.Thread {
	return s.directory.Search(term, func(t *model.Thread) string {
		return s.router.LabelFor(t).Name
	})
}

// Close 释放推送通道
func (s *Session) Close() {
	s.active.Store(0)
	s.subs.Close()
}
