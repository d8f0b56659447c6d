package chat

import (
	"Atelier/internal/model"
	"context"
	log "log/slog"
	"sync"
)

// Labels 显示名配置
type Labels struct {
	Administration string // 管理方对客户显示的名称
	StaffFallback  string // 造型师资料缺失时
	MemberFallback string // 客户资料缺失时
}

// Label 会话列表中对方的显示信息
type Label struct {
	PeerID uint64 `json:"peer_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ThreadRouter 决定可发起会话的对象以及会话的显示标签
type ThreadRouter struct {
	roster  Roster
	members MemberDirectory
	viewer  Identity
	adminID uint64
	labels  Labels

	mu    sync.RWMutex
	known map[uint64]Member
}

func NewThreadRouter(roster Roster, members MemberDirectory, viewer Identity, adminID uint64, labels Labels) *ThreadRouter {
	return &ThreadRouter{
		roster:  roster,
		members: members,
		viewer:  viewer,
		adminID: adminID,
		labels:  labels,
		known:   make(map[uint64]Member),
	}
}

// EligibleCounterparties 客户可选的造型师，排除自己；其他角色为空
func (r *ThreadRouter) EligibleCounterparties(ctx context.Context) ([]Member, error) {
	if !r.viewer.Role.CanInitiate() {
		return []Member{}, nil
	}

	staff, err := r.roster.ListStaff(ctx)
	if err != nil {
		log.ErrorContext(ctx, "list staff roster failed", "err", err)
		return nil, transient("list counterparties", err)
	}

	out := make([]Member, 0, len(staff))
	r.mu.Lock()
	for _, m := range staff {
		r.known[m.ID] = m
		if m.ID == r.viewer.ID {
			continue
		}
		out = append(out, m)
	}
	r.mu.Unlock()
	return out, nil
}

// Prime 预加载会话对方资料，缺失的对方使用占位名
func (r *ThreadRouter) Prime(ctx context.Context, threads []*model.Thread) error {
	var missing []uint64
	seen := make(map[uint64]struct{})

	r.mu.RLock()
	for _, t := range threads {
		peer := r.viewer.PeerOf(t)
		if t.Kind == model.ThreadKindAdministrative && peer == r.adminID {
			continue
		}
		if _, ok := r.known[peer]; ok {
			continue
		}
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		missing = append(missing, peer)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	found, err := r.members.Members(ctx, missing)
	if err != nil {
		log.WarnContext(ctx, "load member profiles failed", "count", len(missing), "err", err)
		return transient("load members", err)
	}

	r.mu.Lock()
	for id, m := range found {
		r.known[id] = m
	}
	r.mu.Unlock()
	return nil
}

// LabelFor 从当前身份视角给出会话对方的显示名与头像
func (r *ThreadRouter) LabelFor(t *model.Thread) Label {
	peer := r.viewer.PeerOf(t)
	if t.Kind == model.ThreadKindAdministrative && peer == r.adminID {
		return Label{PeerID: peer, Name: r.labels.Administration}
	}

	r.mu.RLock()
	m, ok := r.known[peer]
	r.mu.RUnlock()
	if ok && m.Name != "" {
		return Label{PeerID: peer, Name: m.Name, Avatar: m.Avatar}
	}

	if t.Kind == model.ThreadKindStaff && peer == t.ParticipantB {
		return Label{PeerID: peer, Name: r.labels.StaffFallback}
	}
	return Label{PeerID: peer, Name: r.labels.MemberFallback}
}
