package service

import (
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/redis"
	"Atelier/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlDuplicateEntry = 1062
	publishTimeout      = 2 * time.Second
)

// EventPublisher 把消息变更推送到会话频道
type EventPublisher func(ctx context.Context, ev chat.Event) error

// RedisPublisher 直接模式下写库后立即发布
func RedisPublisher(ctx context.Context, ev chat.Event) error {
	return redis.PublishEvent(ctx, ev, consts.PublishSourceStore)
}

// ChatStore 把 MySQL 仓储适配为聊天核心的存储端口
type ChatStore struct {
	threads  repository.ThreadRepo
	messages repository.MessageRepo
	publish  EventPublisher
}

// NewChatStore publish 为空时不发布，由 canal 消费者负责推送
func NewChatStore(threads repository.ThreadRepo, messages repository.MessageRepo, publish EventPublisher) *ChatStore {
	return &ChatStore{threads: threads, messages: messages, publish: publish}
}

func (s *ChatStore) ListThreads(ctx context.Context, viewer chat.Identity) ([]*model.Thread, error) {
	if viewer.Role.SeesAll() {
		return s.threads.ListAllThreads(ctx)
	}
	return s.threads.ListThreadsByParticipant(ctx, viewer.ID)
}

func (s *ChatStore) GetThread(ctx context.Context, threadID uint64) (*model.Thread, error) {
	t, err := s.threads.GetThread(ctx, threadID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &chat.NotFoundError{ThreadID: threadID}
	}
	return t, err
}

func (s *ChatStore) UpsertThread(ctx context.Context, thread *model.Thread) (*model.Thread, error) {
	existing, err := s.threads.GetThreadByPairKey(ctx, thread.PairKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := *thread
	if created.LastActivityAt.IsZero() {
		created.LastActivityAt = time.Now()
	}
	if err = s.threads.CreateThread(ctx, &created); err != nil {
		if isDuplicate(err) {
			return nil, &chat.ConflictError{Key: thread.PairKey, Err: err}
		}
		return nil, err
	}
	return &created, nil
}

func (s *ChatStore) FindThreadByPairKey(ctx context.Context, pairKey string) (*model.Thread, error) {
	t, err := s.threads.GetThreadByPairKey(ctx, pairKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &chat.NotFoundError{}
	}
	return t, err
}

func (s *ChatStore) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	stored := *msg
	stored.ID = 0
	stored.IsRead = false
	if err := s.messages.CreateMessage(ctx, &stored); err != nil {
		return nil, err
	}
	s.emit(ctx, chat.Event{Type: chat.EventInserted, Message: stored})
	return &stored, nil
}

func (s *ChatStore) ListMessages(ctx context.Context, threadID uint64) ([]*model.Message, error) {
	return s.messages.ListMessages(ctx, threadID)
}

func (s *ChatStore) CountUnread(ctx context.Context, viewer chat.Identity) (map[uint64]int, error) {
	rows, err := s.messages.CountUnread(ctx, viewer.ID, viewer.Role == chat.RoleAdmin)
	if err != nil {
		return nil, err
	}
	counts := make(map[uint64]int, len(rows))
	for _, r := range rows {
		if r.Count > 0 {
			counts[r.ThreadID] = r.Count
		}
	}
	return counts, nil
}

// MarkRead 旁观者（管理员查看造型师会话）不修改已读状态
func (s *ChatStore) MarkRead(ctx context.Context, thread *model.Thread, reader chat.Identity) (int64, error) {
	var fromRequester bool
	switch reader.ReadSideOf(thread) {
	case chat.ReadAsRequester:
		fromRequester = false
	case chat.ReadAsCounterparty:
		fromRequester = true
	default:
		return 0, nil
	}

	flipped, err := s.messages.MarkRead(ctx, thread.ID, thread.ParticipantA, fromRequester)
	if err != nil {
		return 0, err
	}
	for _, m := range flipped {
		s.emit(ctx, chat.Event{Type: chat.EventUpdated, Message: *m})
	}
	return int64(len(flipped)), nil
}

// emit 发布失败只记录日志，消息已落库，订阅端可通过轮询补齐
func (s *ChatStore) emit(ctx context.Context, ev chat.Event) {
	if s.publish == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publish(pubCtx, ev); err != nil {
		log.WarnContext(ctx, "publish chat event failed", "type", ev.Type, "thread_id", ev.Message.ThreadID, "message_id", ev.Message.ID, "err", err)
	}
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
