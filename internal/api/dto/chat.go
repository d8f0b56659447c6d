package dto

import "time"

// OpenThreadReq 发起会话请求体
type OpenThreadReq struct {
	CounterpartyID uint64 `json:"counterparty_id"`
	Kind           int8   `json:"kind" binding:"required,oneof=1 2"` // 1-管理方, 2-造型师
}

// SendMessageReq 发送消息请求体，空白内容由聊天核心校验
type SendMessageReq struct {
	Content string `json:"content" binding:"max=4000"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID        uint64    `json:"id"`
	ThreadID  uint64    `json:"thread_id"`
	SenderID  uint64    `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	Receipt   string    `json:"receipt,omitempty"` // 仅自己发出的消息有: read | sent
	CreatedAt time.Time `json:"created_at"`
}

// ThreadDTO 会话列表项响应
type ThreadDTO struct {
	ID             uint64    `json:"id"`
	Kind           int8      `json:"kind"`
	ParticipantA   uint64    `json:"participant_a"`
	ParticipantB   uint64    `json:"participant_b"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	PeerID         uint64    `json:"peer_id"`
	PeerName       string    `json:"peer_name"`
	PeerAvatar     string    `json:"peer_avatar,omitempty"`
	Unread         int       `json:"unread"`
}

// UnreadDTO 未读数
type UnreadDTO struct {
	Counts map[uint64]int `json:"counts"`
	Total  int            `json:"total"`
}

// MemberDTO 可发起会话的造型师
type MemberDTO struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Avatar      string   `json:"avatar"`
	Specialties []string `json:"specialties"`
}

const (
	WsOpActivate   = "activate"
	WsOpDeactivate = "deactivate"
	WsOpSend       = "send"
	WsOpStart      = "start"
	WsOpPing       = "ping"
)

// WsCommand 客户端上行指令
type WsCommand struct {
	Op             string `json:"op" validate:"required,oneof=activate deactivate send start ping"`
	ThreadID       uint64 `json:"thread_id" validate:"required_if=Op activate"`
	CounterpartyID uint64 `json:"counterparty_id"`
	Kind           int8   `json:"kind" validate:"required_if=Op start"`
	Content        string `json:"content" validate:"max=4000"`
}

const (
	WsFrameThreads  = "threads"
	WsFrameMessages = "messages"
	WsFrameUnread   = "unread"
	WsFrameSent     = "sent"
	WsFrameStarted  = "started"
	WsFrameError    = "error"
	WsFramePong     = "pong"
)

// WsFrame 服务端下行帧
type WsFrame struct {
	Type     string      `json:"type"`
	ThreadID uint64      `json:"thread_id,omitempty"`
	Live     *bool       `json:"live,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Code     int         `json:"code,omitempty"`
	Message  string      `json:"message,omitempty"`
}
