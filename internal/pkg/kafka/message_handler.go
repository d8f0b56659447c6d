package kafka

import (
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"Atelier/internal/pkg/metrics"
	"context"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

const messagesTable = "chat_messages"

// PublishFunc 把变更推送到会话频道
type PublishFunc func(ctx context.Context, ev chat.Event) error

// MessagesHandler 把 chat_messages 的 binlog 变更转成推送事件
type MessagesHandler struct {
	publish PublishFunc
	loc     *time.Location
}

func NewMessagesHandler(publish PublishFunc, loc *time.Location) *MessagesHandler {
	if loc == nil {
		loc = time.Local
	}
	return &MessagesHandler{publish: publish, loc: loc}
}

func (s *MessagesHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("chat messages consumer setup")
	return nil
}

func (s *MessagesHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("chat messages consumer cleanup")
	return nil
}

func (s *MessagesHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("chat messages consume claim", "partition", claim.Partition())
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("chat messages process batch error", "err", err)
		return err
	}
	return nil
}

func (s *MessagesHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, messagesTable)
	if err != nil {
		// 格式问题重试也不会好，直接跳过
		if errors.Is(err, ErrTableMismatch) || errors.Is(err, ErrEmptyData) {
			return nil
		}
		metrics.DroppedEvents.WithLabelValues("canal_undecodable").Inc()
		log.WarnContext(ctx, "skip undecodable canal message", "offset", msg.Offset, "err", err)
		return nil
	}
	if canalMsg.IsDDL {
		return nil
	}

	events := s.Events(canalMsg)
	for _, ev := range events {
		if err = s.publish(ctx, ev); err != nil {
			return errors.Wrapf(err, "publish %s for message %d", ev.Type, ev.Message.ID)
		}
	}
	return nil
}

// Events 把一条 canal 消息展开为推送事件；UPDATE 只关心已读状态的翻转
func (s *MessagesHandler) Events(canalMsg *CanalMessage) []chat.Event {
	var evType chat.EventType
	switch canalMsg.Type {
	case INSERT:
		evType = chat.EventInserted
	case UPDATE:
		evType = chat.EventUpdated
	default:
		return nil
	}

	events := make([]chat.Event, 0, len(canalMsg.Data))
	for i, row := range canalMsg.Data {
		if evType == chat.EventUpdated && !canalMsg.OldHas(i, "is_read") {
			continue
		}
		m, err := s.RowToMessage(row)
		if err != nil {
			metrics.DroppedEvents.WithLabelValues("canal_row").Inc()
			log.Warn("skip malformed chat_messages row", "type", canalMsg.Type, "err", err)
			continue
		}
		events = append(events, chat.Event{Type: evType, Message: *m})
	}
	return events
}

// RowToMessage canal 行数据转消息
func (s *MessagesHandler) RowToMessage(row map[string]interface{}) (*model.Message, error) {
	m := &model.Message{
		ID:       StrToUint64(row["id"]),
		ThreadID: StrToUint64(row["thread_id"]),
		SenderID: StrToUint64(row["sender_id"]),
		Content:  toString(row["content"]),
		IsRead:   StrToBool(row["is_read"]),
	}
	if m.ID == 0 || m.ThreadID == 0 {
		return nil, errors.New("missing id or thread_id")
	}
	createdAt, err := StrToTime(row["created_at"], s.loc)
	if err != nil {
		return nil, errors.Wrap(err, "created_at")
	}
	m.CreatedAt = createdAt
	return m, nil
}
