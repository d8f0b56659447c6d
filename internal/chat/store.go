package chat

import (
	"Atelier/internal/model"
	"context"
)

// ThreadStore 会话持久化
type ThreadStore interface {
	// ListThreads 按角色范围列出会话，最近活跃在前
	ListThreads(ctx context.Context, viewer Identity) ([]*model.Thread, error)
	// GetThread 不存在时返回 NotFoundError
	GetThread(ctx context.Context, threadID uint64) (*model.Thread, error)
	// UpsertThread 按 PairKey 原子地查找或创建，唯一键冲突时返回 ConflictError
	UpsertThread(ctx context.Context, thread *model.Thread) (*model.Thread, error)
	FindThreadByPairKey(ctx context.Context, pairKey string) (*model.Thread, error)
}

// MessageStore 消息持久化，ID 与 CreatedAt 由存储分配
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, threadID uint64) ([]*model.Message, error)
}

// UnreadStore 未读计数
type UnreadStore interface {
	// CountUnread 发给 viewer 且未读的消息数，按会话分组，规则见 Identity.ReadSideOf
	CountUnread(ctx context.Context, viewer Identity) (map[uint64]int, error)
	// MarkRead 将会话内发给 reader 的消息置为已读，旁观者不做修改，返回影响行数
	MarkRead(ctx context.Context, thread *model.Thread, reader Identity) (int64, error)
}

// EventType 推送事件类型
type EventType string

const (
	EventInserted EventType = "INSERT"
	EventUpdated  EventType = "UPDATE"
)

// Event 推送通道上的一条通知，同一事件可能重复到达
type Event struct {
	Type    EventType     `json:"type"`
	Message model.Message `json:"message"`
}

// Channel 一个已打开的会话推送通道
type Channel interface {
	ThreadID() uint64
	Close() error
}

// Broker 按会话订阅推送，handler 在通道自己的 goroutine 上被调用
type Broker interface {
	Subscribe(ctx context.Context, threadID uint64, handler func(Event)) (Channel, error)
}

// Member 造型师名录条目
type Member struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Avatar      string   `json:"avatar"`
	Specialties []string `json:"specialties"`
}

// Roster 可被客户选择的造型师名录
type Roster interface {
	ListStaff(ctx context.Context) ([]Member, error)
}

// MemberDirectory 按 ID 批量查询参与方资料
type MemberDirectory interface {
	Members(ctx context.Context, ids []uint64) (map[uint64]Member, error)
}
