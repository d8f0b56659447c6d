package redis

import (
	"Atelier/internal/chat"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/metrics"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const closeWait = 3 * time.Second

// ThreadChannel 会话推送频道名
func ThreadChannel(threadID uint64) string {
	return consts.IMThreadKey + strconv.FormatUint(threadID, 10)
}

// PublishEvent 把消息变更发布到会话频道
func PublishEvent(ctx context.Context, ev chat.Event, source string) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err = Publish(ctx, ThreadChannel(ev.Message.ThreadID), data); err != nil {
		return err
	}
	metrics.PublishedEvents.WithLabelValues(string(ev.Type), source).Inc()
	return nil
}

// Broker 基于 Redis Pub/Sub 的会话推送
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Subscribe 订阅会话频道，确认订阅成功后才返回
func (b *Broker) Subscribe(ctx context.Context, threadID uint64, handler func(chat.Event)) (chat.Channel, error) {
	ps := b.client.Subscribe(ctx, ThreadChannel(threadID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe thread %d: %w", threadID, err)
	}

	ch := &threadChannel{
		threadID: threadID,
		pubsub:   ps,
		done:     make(chan struct{}),
	}
	go ch.loop(ps.Channel(), handler)
	return ch, nil
}

type threadChannel struct {
	threadID uint64
	pubsub   *redis.PubSub
	done     chan struct{}
	once     sync.Once
}

func (c *threadChannel) ThreadID() uint64 { return c.threadID }

func (c *threadChannel) loop(msgs <-chan *redis.Message, handler func(chat.Event)) {
	defer close(c.done)
	for msg := range msgs {
		var ev chat.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			metrics.DroppedEvents.WithLabelValues("undecodable").Inc()
			log.Warn("drop undecodable push payload", "channel", msg.Channel, "err", err)
			continue
		}
		handler(ev)
	}
}

// Close 退订并等待投递协程退出，返回后不会再有回调
func (c *threadChannel) Close() error {
	var err error
	c.once.Do(func() {
		err = c.pubsub.Close()
		select {
		case <-c.done:
		case <-time.After(closeWait):
			log.Warn("push channel dispatcher still running after close", "thread_id", c.threadID)
		}
	})
	return err
}
