package chat

import (
	"Atelier/internal/model"
	"context"
	"errors"
	log "log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// 同一进程内相同 PairKey 的并发创建合并为一次存储调用
var openGroup singleflight.Group

// 合并后的创建不随首个调用方取消
const openTimeout = 10 * time.Second

// ThreadDirectory 当前身份可见的会话目录，按最近活跃排序
type ThreadDirectory struct {
	store   ThreadStore
	viewer  Identity
	adminID uint64

	mu      sync.RWMutex
	byID    map[uint64]*model.Thread
	ordered []*model.Thread
}

func NewThreadDirectory(store ThreadStore, viewer Identity, adminID uint64) *ThreadDirectory {
	return &ThreadDirectory{
		store:   store,
		viewer:  viewer,
		adminID: adminID,
		byID:    make(map[uint64]*model.Thread),
	}
}

// List 从存储拉取并替换本地目录
func (d *ThreadDirectory) List(ctx context.Context) ([]*model.Thread, error) {
	threads, err := d.store.ListThreads(ctx, d.viewer)
	if err != nil {
		log.ErrorContext(ctx, "list threads failed", "user_id", d.viewer.ID, "err", err)
		return nil, transient("list threads", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID = make(map[uint64]*model.Thread, len(threads))
	for _, t := range threads {
		if !d.viewer.CanView(t) {
			log.WarnContext(ctx, "store returned a thread outside viewer scope", "thread_id", t.ID, "user_id", d.viewer.ID)
			continue
		}
		cp := *t
		d.byID[cp.ID] = &cp
	}
	d.resortLocked()
	return d.snapshotLocked(), nil
}

// OpenOrCreate 查找或创建 (客户, 对方, 类型) 对应的唯一会话
func (d *ThreadDirectory) OpenOrCreate(ctx context.Context, requesterID, counterpartyID uint64, kind int8) (*model.Thread, error) {
	if !d.viewer.Role.CanInitiate() {
		return nil, &ValidationError{Field: "role", Reason: d.viewer.Role.String() + " cannot start conversations"}
	}
	if requesterID == 0 || requesterID != d.viewer.ID {
		return nil, &ValidationError{Field: "requester_id", Reason: "must be the current user"}
	}

	switch kind {
	case model.ThreadKindAdministrative:
		counterpartyID = d.adminID
	case model.ThreadKindStaff:
		if counterpartyID == 0 {
			return nil, &ValidationError{Field: "counterparty_id", Reason: "required for staff threads"}
		}
		if counterpartyID == requesterID {
			return nil, &ValidationError{Field: "counterparty_id", Reason: "cannot open a thread with yourself"}
		}
	default:
		return nil, &ValidationError{Field: "kind", Reason: "unknown thread kind"}
	}

	key := model.PairKey(kind, requesterID, counterpartyID)
	v, err, shared := openGroup.Do(key, func() (any, error) {
		upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
		defer cancel()
		return d.upsert(upCtx, &model.Thread{
			Kind:           kind,
			ParticipantA:   requesterID,
			ParticipantB:   counterpartyID,
			PairKey:        key,
			LastActivityAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.DebugContext(ctx, "thread creation collapsed", "pair_key", key)
	}

	thread := *v.(*model.Thread)
	d.put(&thread)
	out := thread
	return &out, nil
}

func (d *ThreadDirectory) upsert(ctx context.Context, t *model.Thread) (*model.Thread, error) {
	got, err := d.store.UpsertThread(ctx, t)
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, ErrConflict) {
		log.ErrorContext(ctx, "upsert thread failed", "pair_key", t.PairKey, "err", err)
		return nil, transient("open thread", err)
	}

	// 另一方先插入成功，取胜出的那一条
	winner, err := d.store.FindThreadByPairKey(ctx, t.PairKey)
	if err != nil {
		return nil, transient("resolve thread conflict", err)
	}
	return winner, nil
}

// Touch 推进会话最近活跃时间并重排，不做 I/O
func (d *ThreadDirectory) Touch(threadID uint64, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.byID[threadID]
	if !ok {
		return false
	}
	if !at.After(t.LastActivityAt) {
		return false
	}
	t.LastActivityAt = at
	d.resortLocked()
	return true
}

// Authorize 返回可见的会话，不可见时与不存在一样返回 NotFoundError
func (d *ThreadDirectory) Authorize(ctx context.Context, threadID uint64) (*model.Thread, error) {
	if t, ok := d.Get(threadID); ok {
		return t, nil
	}

	t, err := d.store.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{ThreadID: threadID}
		}
		return nil, transient("get thread", err)
	}
	if !d.viewer.CanView(t) {
		return nil, &NotFoundError{ThreadID: threadID}
	}
	d.put(t)
	out := *t
	return &out, nil
}

// Get 读取本地缓存
func (d *ThreadDirectory) Get(threadID uint64) (*model.Thread, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.byID[threadID]
	if !ok {
		return nil, false
	}
	out := *t
	return &out, true
}

// Threads 本地目录快照
func (d *ThreadDirectory) Threads() []*model.Thread {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

// Search 按对方显示名过滤，忽略大小写
func (d *ThreadDirectory) Search(term string, label func(*model.Thread) string) []*model.Thread {
	all := d.Threads()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	out := make([]*model.Thread, 0, len(all))
	for _, t := range all {
		if strings.Contains(strings.ToLower(label(t)), term) {
			out = append(out, t)
		}
	}
	return out
}

func (d *ThreadDirectory) put(t *model.Thread) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.byID[t.ID]; ok {
		if t.LastActivityAt.After(cur.LastActivityAt) {
			cur.LastActivityAt = t.LastActivityAt
		}
	} else {
		cp := *t
		d.byID[cp.ID] = &cp
	}
	d.resortLocked()
}

func (d *ThreadDirectory) resortLocked() {
	d.ordered = d.ordered[:0]
	for _, t := range d.byID {
		d.ordered = append(d.ordered, t)
	}
	sort.Slice(d.ordered, func(i, j int) bool {
		a, b := d.ordered[i], d.ordered[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID > b.ID
	})
}

func (d *ThreadDirectory) snapshotLocked() []*model.Thread {
	out := make([]*model.Thread, 0, len(d.ordered))
	for _, t := range d.ordered {
		cp := *t
		out = append(out, &cp)
	}
	return out
}
