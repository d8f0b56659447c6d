package chat

import (
	"Atelier/internal/model"
	"Atelier/internal/pkg/consts"
	"strings"
)

// Role 参与方角色
type Role int8

const (
	RoleRequester Role = iota + 1
	RoleStaff
	RoleAdmin
)

// rolePolicy 角色策略，所有按角色分支的逻辑都从这里取
type rolePolicy struct {
	name      string
	seesAll   bool
	initiates bool
	// peer 从该角色视角看，会话的“对方”是谁
	peer func(t *model.Thread, self uint64) uint64
}

var policies = map[Role]rolePolicy{
	RoleRequester: {
		name:      consts.RoleCustomer,
		initiates: true,
		peer: func(t *model.Thread, self uint64) uint64 {
			return otherSide(t, self, t.ParticipantB)
		},
	},
	RoleStaff: {
		name: consts.RoleStylist,
		peer: func(t *model.Thread, self uint64) uint64 {
			return otherSide(t, self, t.ParticipantA)
		},
	},
	RoleAdmin: {
		name:    consts.RoleAdmin,
		seesAll: true,
		peer: func(t *model.Thread, self uint64) uint64 {
			return otherSide(t, self, t.ParticipantA)
		},
	},
}

func otherSide(t *model.Thread, self, fallback uint64) uint64 {
	switch self {
	case t.ParticipantA:
		return t.ParticipantB
	case t.ParticipantB:
		return t.ParticipantA
	}
	return fallback
}

func (r Role) policy() rolePolicy {
	if p, ok := policies[r]; ok {
		return p
	}
	return policies[RoleRequester]
}

func (r Role) String() string { return r.policy().name }

// SeesAll 是否可以查看全部会话
func (r Role) SeesAll() bool { return r.policy().seesAll }

// CanInitiate 是否可以主动发起会话
func (r Role) CanInitiate() bool { return r.policy().initiates }

// RoleFromClaims 根据 Token 中的角色列表取权限最高的角色
func RoleFromClaims(roles []string) Role {
	best := RoleRequester
	for _, name := range roles {
		switch strings.ToUpper(name) {
		case consts.RoleAdmin:
			return RoleAdmin
		case consts.RoleStaff, consts.RoleStylist:
			best = RoleStaff
		}
	}
	return best
}

// Identity 当前连接的身份
type Identity struct {
	ID   uint64
	Role Role
}

// CanView 角色可见性：管理员可见全部，其余仅可见自己参与的会话
func (i Identity) CanView(t *model.Thread) bool {
	return i.Role.SeesAll() || t.HasParticipant(i.ID)
}

// PeerOf 会话中相对当前身份的另一方
func (i Identity) PeerOf(t *model.Thread) uint64 {
	return i.Role.policy().peer(t, i.ID)
}

// ReadSide 身份在会话中的已读角色
type ReadSide int8

const (
	// ReadNone 旁观者：不计未读，也不修改已读状态
	ReadNone ReadSide = iota
	// ReadAsRequester 读取对方（非 ParticipantA）发来的消息
	ReadAsRequester
	// ReadAsCounterparty 读取客户（ParticipantA）发来的消息
	ReadAsCounterparty
)

// ReadSideOf 按会话位置决定已读角色；管理员只在管理方会话中代表管理方
func (i Identity) ReadSideOf(t *model.Thread) ReadSide {
	switch {
	case t.ParticipantA == i.ID:
		return ReadAsRequester
	case t.ParticipantB == i.ID:
		return ReadAsCounterparty
	case t.Kind == model.ThreadKindAdministrative && i.Role == RoleAdmin:
		return ReadAsCounterparty
	}
	return ReadNone
}

// Receives msg 是否发给当前身份
func (i Identity) Receives(t *model.Thread, msg *model.Message) bool {
	switch i.ReadSideOf(t) {
	case ReadAsRequester:
		return msg.SenderID != t.ParticipantA
	case ReadAsCounterparty:
		return msg.SenderID == t.ParticipantA
	}
	return false
}
