package chattest

import (
	"Atelier/internal/chat"
	"context"
	"errors"
	"sync"
)

var ErrBrokerDown = errors.New("chattest: broker unavailable")

// Broker 内存推送，Publish 同步调用已打开通道的回调
type Broker struct {
	mu     sync.Mutex
	nextID int
	open   map[int]*channel
	opened map[uint64]int

	// FailOpens 接下来失败的 Subscribe 次数
	FailOpens int
}

func NewBroker() *Broker {
	return &Broker{
		open:   make(map[int]*channel),
		opened: make(map[uint64]int),
	}
}

type channel struct {
	id       int
	threadID uint64
	handler  func(chat.Event)
	broker   *Broker
}

func (c *channel) ThreadID() uint64 { return c.threadID }

func (c *channel) Close() error {
	c.broker.mu.Lock()
	delete(c.broker.open, c.id)
	c.broker.mu.Unlock()
	return nil
}

func (b *Broker) Subscribe(_ context.Context, threadID uint64, handler func(chat.Event)) (chat.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOpens > 0 {
		b.FailOpens--
		return nil, ErrBrokerDown
	}
	b.nextID++
	ch := &channel{id: b.nextID, threadID: threadID, handler: handler, broker: b}
	b.open[ch.id] = ch
	b.opened[threadID]++
	return ch, nil
}

// Publish 投递到订阅该会话的所有通道
func (b *Broker) Publish(ev chat.Event) {
	b.mu.Lock()
	var targets []func(chat.Event)
	for _, ch := range b.open {
		if ch.threadID == ev.Message.ThreadID {
			targets = append(targets, ch.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(ev)
	}
}

// Deliver 绕过会话过滤，直接投递给订阅 threadID 的通道，模拟串线
func (b *Broker) Deliver(threadID uint64, ev chat.Event) {
	b.mu.Lock()
	var targets []func(chat.Event)
	for _, ch := range b.open {
		if ch.threadID == threadID {
			targets = append(targets, ch.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(ev)
	}
}

// Capture 取出会话当前通道的回调，通道关闭后仍可调用，用于模拟迟到的事件
func (b *Broker) Capture(threadID uint64) func(chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.open {
		if ch.threadID == threadID {
			return ch.handler
		}
	}
	return nil
}

// LiveCount 当前打开的通道数
func (b *Broker) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}

// LiveThreads 当前打开通道对应的会话
func (b *Broker) LiveThreads() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, 0, len(b.open))
	for _, ch := range b.open {
		out = append(out, ch.threadID)
	}
	return out
}

// Opened 某会话累计打开次数
func (b *Broker) Opened(threadID uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[threadID]
}
