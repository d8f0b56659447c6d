package chattest

import (
	"Atelier/internal/chat"
	"context"
	"sync"
)

// Roster 固定名录，同时实现 chat.Roster 与 chat.MemberDirectory
type Roster struct {
	mu      sync.Mutex
	staff   []chat.Member
	members map[uint64]chat.Member
	Err     error
}

func NewRoster(staff ...chat.Member) *Roster {
	r := &Roster{members: make(map[uint64]chat.Member)}
	r.staff = append(r.staff, staff...)
	for _, m := range staff {
		r.members[m.ID] = m
	}
	return r
}

// AddMember 登记非名录成员（例如客户）
func (r *Roster) AddMember(m chat.Member) {
	r.mu.Lock()
	r.members[m.ID] = m
	r.mu.Unlock()
}

func (r *Roster) ListStaff(context.Context) ([]chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]chat.Member(nil), r.staff...), nil
}

func (r *Roster) Members(_ context.Context, ids []uint64) (map[uint64]chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make(map[uint64]chat.Member, len(ids))
	for _, id := range ids {
		if m, ok := r.members[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

// Stores 组装一套内存端口，写入事件经 broker 推送
func Stores(store *Store, broker *Broker, roster *Roster) chat.Stores {
	store.Publish = broker.Publish
	return chat.Stores{
		Threads:  store,
		Messages: store,
		Unread:   store,
		Broker:   broker,
		Roster:   roster,
		Members:  roster,
	}
}
