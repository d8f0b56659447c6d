package service

import (
	"Atelier/internal/api/dto"
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"context"
	"fmt"
	log "log/slog"
	"sort"

	"github.com/jinzhu/copier"
)

// ChatService 聊天服务：为 websocket 建立会话，为 REST 提供一次性查询
type ChatService interface {
	OpenSession(ctx context.Context, viewer chat.Identity) (*chat.Session, error)
	ListThreads(ctx context.Context, viewer chat.Identity) ([]*dto.ThreadDTO, error)
	SearchThreads(ctx context.Context, viewer chat.Identity, term string) ([]*dto.ThreadDTO, error)
	OpenThread(ctx context.Context, viewer chat.Identity, req *dto.OpenThreadReq) (*dto.ThreadDTO, error)
	ListMessages(ctx context.Context, viewer chat.Identity, threadID uint64) ([]*dto.MessageDTO, error)
	SendMessage(ctx context.Context, viewer chat.Identity, threadID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	MarkRead(ctx context.Context, viewer chat.Identity, threadID uint64) error
	Unread(ctx context.Context, viewer chat.Identity) (*dto.UnreadDTO, error)
	TotalUnread(ctx context.Context, viewer chat.Identity) (int, error)
	Counterparties(ctx context.Context, viewer chat.Identity) ([]*dto.MemberDTO, error)
}

type chatServiceImpl struct {
	stores chat.Stores
	opts   chat.Options
}

func NewChatService(stores chat.Stores, opts chat.Options) ChatService {
	return &chatServiceImpl{stores: stores, opts: opts}
}

func (s *chatServiceImpl) newSession(viewer chat.Identity) *chat.Session {
	return chat.NewSession(viewer, s.stores, s.opts)
}

// OpenSession 新建会话并完成首次加载，调用方负责 Close
func (s *chatServiceImpl) OpenSession(ctx context.Context, viewer chat.Identity) (*chat.Session, error) {
	session := s.newSession(viewer)
	if err := session.Load(ctx); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// ListThreads 会话目录，带对方名称与未读数
func (s *chatServiceImpl) ListThreads(ctx context.Context, viewer chat.Identity) ([]*dto.ThreadDTO, error) {
	session := s.newSession(viewer)
	defer session.Close()
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	return toThreadDTOs(session.Overview())
}

// SearchThreads 按对方名称筛选
func (s *chatServiceImpl) SearchThreads(ctx context.Context, viewer chat.Identity, term string) ([]*dto.ThreadDTO, error) {
	session := s.newSession(viewer)
	defer session.Close()
	if err := session.Load(ctx); err != nil {
		return nil, err
	}

	matched := make(map[uint64]struct{})
	for _, t := range session.Search(term) {
		matched[t.ID] = struct{}{}
	}
	var summaries []chat.ThreadSummary
	for _, sum := range session.Overview() {
		if _, ok := matched[sum.Thread.ID]; ok {
			summaries = append(summaries, sum)
		}
	}
	return toThreadDTOs(summaries)
}

// OpenThread 发起或打开已有会话
func (s *chatServiceImpl) OpenThread(ctx context.Context, viewer chat.Identity, req *dto.OpenThreadReq) (*dto.ThreadDTO, error) {
	session := s.newSession(viewer)
	defer session.Close()

	thread, err := session.StartConversation(ctx, req.CounterpartyID, req.Kind)
	if err != nil {
		return nil, err
	}
	return toThreadDTO(chat.ThreadSummary{
		Thread: thread,
		Label:  session.Router().LabelFor(thread),
		Unread: session.Unread().Count(thread.ID),
	})
}

// ListMessages 会话消息，按时间升序
func (s *chatServiceImpl) ListMessages(ctx context.Context, viewer chat.Identity, threadID uint64) ([]*dto.MessageDTO, error) {
	session := s.newSession(viewer)
	defer session.Close()

	if _, err := session.Directory().Authorize(ctx, threadID); err != nil {
		return nil, err
	}
	msgs, err := s.stores.Messages.ListMessages(ctx, threadID)
	if err != nil {
		return nil, &chat.TransientIOError{Op: "list messages", Err: err}
	}
	for _, m := range msgs {
		session.Messages().ApplyIncoming(m)
	}
	return ToMessageDTOs(session.Messages().List(threadID), viewer.ID)
}

// SendMessage 追加一条消息
func (s *chatServiceImpl) SendMessage(ctx context.Context, viewer chat.Identity, threadID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	session := s.newSession(viewer)
	defer session.Close()

	msg, err := session.SendTo(ctx, threadID, req.Content)
	if err != nil {
		return nil, err
	}
	return ToMessageDTO(msg, viewer.ID)
}

// MarkRead 把会话内对方的消息标记为已读
func (s *chatServiceImpl) MarkRead(ctx context.Context, viewer chat.Identity, threadID uint64) error {
	session := s.newSession(viewer)
	defer session.Close()

	thread, err := session.Directory().Authorize(ctx, threadID)
	if err != nil {
		return err
	}
	return session.Unread().MarkRead(ctx, thread)
}

// Unread 各会话未读数
func (s *chatServiceImpl) Unread(ctx context.Context, viewer chat.Identity) (*dto.UnreadDTO, error) {
	tracker := chat.NewUnreadTracker(s.stores.Unread, nil, viewer)
	counts, err := tracker.RefreshAll(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.UnreadDTO{Counts: counts, Total: tracker.Total()}, nil
}

// TotalUnread 全部会话未读总数
func (s *chatServiceImpl) TotalUnread(ctx context.Context, viewer chat.Identity) (int, error) {
	res, err := s.Unread(ctx, viewer)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Counterparties 当前身份可发起会话的对象
func (s *chatServiceImpl) Counterparties(ctx context.Context, viewer chat.Identity) ([]*dto.MemberDTO, error) {
	router := chat.NewThreadRouter(s.stores.Roster, s.stores.Members, viewer, s.opts.AdministrationID, s.opts.Labels)
	members, err := router.EligibleCounterparties(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	res := make([]*dto.MemberDTO, 0, len(members))
	if err = copier.Copy(&res, &members); err != nil {
		return nil, fmt.Errorf("copy members: %w", err)
	}
	return res, nil
}

// ToMessageDTO 消息转响应，附带自己发出消息的回执状态
func ToMessageDTO(m *model.Message, viewerID uint64) (*dto.MessageDTO, error) {
	var d dto.MessageDTO
	if err := copier.Copy(&d, m); err != nil {
		return nil, fmt.Errorf("copy message: %w", err)
	}
	d.Receipt = chat.ReceiptFor(m, viewerID)
	return &d, nil
}

func ToMessageDTOs(msgs []*model.Message, viewerID uint64) ([]*dto.MessageDTO, error) {
	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		d, err := ToMessageDTO(m, viewerID)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func toThreadDTO(sum chat.ThreadSummary) (*dto.ThreadDTO, error) {
	var d dto.ThreadDTO
	if err := copier.Copy(&d, sum.Thread); err != nil {
		return nil, fmt.Errorf("copy thread: %w", err)
	}
	d.PeerID = sum.Label.PeerID
	d.PeerName = sum.Label.Name
	d.PeerAvatar = sum.Label.Avatar
	d.Unread = sum.Unread
	return &d, nil
}

// ToThreadDTOs 目录快照转响应
func ToThreadDTOs(summaries []chat.ThreadSummary) ([]*dto.ThreadDTO, error) {
	return toThreadDTOs(summaries)
}

func toThreadDTOs(summaries []chat.ThreadSummary) ([]*dto.ThreadDTO, error) {
	res := make([]*dto.ThreadDTO, 0, len(summaries))
	for _, sum := range summaries {
		d, err := toThreadDTO(sum)
		if err != nil {
			log.Error("convert thread summary failed", "thread_id", sum.Thread.ID, "err", err)
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}
