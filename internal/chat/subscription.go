package chat

import (
	"Atelier/internal/model"
	"Atelier/internal/pkg/metrics"
	"context"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SubState 订阅状态
type SubState int8

const (
	StateIdle SubState = iota
	StateAttached
)

func (s SubState) String() string {
	if s == StateAttached {
		return "attached"
	}
	return "idle"
}

const (
	openAttempts     = 2
	asyncReadTimeout = 5 * time.Second
)

// SubscriptionManager 同一时刻最多持有一个会话推送通道
type SubscriptionManager struct {
	broker   Broker
	messages *MessageLog
	unread   *UnreadTracker
	viewer   Identity

	mu      sync.Mutex
	channel Channel
	// attached 为当前附着的会话 ID，0 表示空闲；推送回调只读它，不拿 mu
	attached atomic.Uint64

	onRead func(threadID uint64)
	async  sync.WaitGroup

	// reading 记录正在执行异步已读的会话，值为 true 表示执行期间又有新消息，需要再跑一轮
	readMu  sync.Mutex
	reading map[uint64]bool
}

func NewSubscriptionManager(broker Broker, messages *MessageLog, unread *UnreadTracker, viewer Identity) *SubscriptionManager {
	return &SubscriptionManager{
		broker:   broker,
		messages: messages,
		unread:   unread,
		viewer:   viewer,
		reading:  make(map[uint64]bool),
	}
}

// OnRead 对方消息触发的异步已读完成后回调
func (m *SubscriptionManager) OnRead(fn func(threadID uint64)) {
	m.mu.Lock()
	m.onRead = fn
	m.mu.Unlock()
}

// Attach 切换到新会话：先关闭旧通道，再打开新通道
func (m *SubscriptionManager) Attach(ctx context.Context, thread *model.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	threadID := thread.ID
	if m.channel != nil && m.attached.Load() == threadID {
		return nil
	}
	m.teardownLocked()

	m.attached.Store(threadID)
	ch, err := m.open(ctx, *thread)
	if err != nil {
		m.attached.Store(0)
		return &TransientIOError{Op: "open push channel", Err: err}
	}
	m.channel = ch
	metrics.LiveChannels.Inc()
	log.InfoContext(ctx, "push channel attached", "thread_id", threadID, "user_id", m.viewer.ID)
	return nil
}

// open 失败后立即重试一次，不做后台重试
func (m *SubscriptionManager) open(ctx context.Context, thread model.Thread) (Channel, error) {
	threadID := thread.ID
	var err error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		var ch Channel
		ch, err = m.broker.Subscribe(ctx, threadID, m.dispatch(thread))
		if err == nil {
			return ch, nil
		}
		metrics.ChannelOpenFailures.Inc()
		log.WarnContext(ctx, "open push channel failed", "thread_id", threadID, "attempt", attempt, "err", err)
	}
	return nil, err
}

// Detach 关闭当前通道回到空闲
func (m *SubscriptionManager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *SubscriptionManager) teardownLocked() {
	m.attached.Store(0)
	if m.channel == nil {
		return
	}
	threadID := m.channel.ThreadID()
	if err := m.channel.Close(); err != nil {
		log.Warn("close push channel failed", "thread_id", threadID, "err", err)
	}
	m.channel = nil
	metrics.LiveChannels.Dec()
}

// State 当前状态及附着的会话
func (m *SubscriptionManager) State() (SubState, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channel == nil {
		return StateIdle, 0
	}
	return StateAttached, m.channel.ThreadID()
}

// Live 是否持有推送通道
func (m *SubscriptionManager) Live() bool {
	state, _ := m.State()
	return state == StateAttached
}

// Wait 等待异步已读任务结束
func (m *SubscriptionManager) Wait() {
	m.async.Wait()
}

// Close 关闭通道并等待异步任务
func (m *SubscriptionManager) Close() {
	m.Detach()
	m.async.Wait()
}

func (m *SubscriptionManager) dispatch(thread model.Thread) func(Event) {
	threadID := thread.ID
	return func(ev Event) {
		// 旧通道残留的事件或串到别的会话的事件
		if m.attached.Load() != threadID || ev.Message.ThreadID != threadID {
			metrics.DroppedEvents.WithLabelValues("stale").Inc()
			log.Debug("ignore event for detached thread", "thread_id", ev.Message.ThreadID, "attached", m.attached.Load())
			return
		}

		switch ev.Type {
		case EventInserted:
			if !m.messages.ApplyIncoming(&ev.Message) {
				return
			}
			if m.viewer.Receives(&thread, &ev.Message) {
				m.markReadAsync(thread)
			}
		case EventUpdated:
			m.messages.ApplyIncoming(&ev.Message)
		default:
			metrics.DroppedEvents.WithLabelValues("unknown_type").Inc()
			log.Warn("drop push event with unknown type", "type", ev.Type, "thread_id", threadID)
		}
	}
}

// markReadAsync 每个会话同一时刻最多一个已读任务，执行期间到达的消息合并为下一轮
func (m *SubscriptionManager) markReadAsync(thread model.Thread) {
	m.readMu.Lock()
	if _, running := m.reading[thread.ID]; running {
		m.reading[thread.ID] = true
		m.readMu.Unlock()
		return
	}
	m.reading[thread.ID] = false
	m.readMu.Unlock()

	m.async.Add(1)
	go func() {
		defer m.async.Done()
		for {
			m.markRead(&thread)

			m.readMu.Lock()
			if m.reading[thread.ID] {
				m.reading[thread.ID] = false
				m.readMu.Unlock()
				continue
			}
			delete(m.reading, thread.ID)
			m.readMu.Unlock()
			return
		}
	}()
}

func (m *SubscriptionManager) markRead(thread *model.Thread) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncReadTimeout)
	defer cancel()

	if err := m.unread.MarkRead(ctx, thread); err != nil {
		log.WarnContext(ctx, "async mark read failed", "thread_id", thread.ID, "err", err)
	}
	if _, err := m.unread.RefreshAll(ctx); err != nil {
		log.WarnContext(ctx, "async unread refresh failed", "err", err)
	}

	m.mu.Lock()
	fn := m.onRead
	m.mu.Unlock()
	if fn != nil {
		fn(thread.ID)
	}
}
