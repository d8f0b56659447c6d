package handler

import (
	"Atelier/internal/api/dto"
	"Atelier/internal/chat"
	"Atelier/internal/service"
	log "log/slog"
	"sync"
)

// presenter 合并会话变化，写协程按需渲染成下行帧
type presenter struct {
	session *chat.Session

	mu      sync.Mutex
	pending map[chat.ChangeKind]struct{}
	notify  chan struct{}
}

func newPresenter(session *chat.Session) *presenter {
	p := &presenter{
		session: session,
		pending: make(map[chat.ChangeKind]struct{}),
		notify:  make(chan struct{}, 1),
	}
	session.OnChange(p.mark)
	return p
}

// mark 在推送回调里被调用，不能阻塞
func (p *presenter) mark(c chat.Change) {
	p.mu.Lock()
	p.pending[c.Kind] = struct{}{}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *presenter) drain() map[chat.ChangeKind]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = make(map[chat.ChangeKind]struct{})
	return out
}

// frames 按 threads / messages / unread 的顺序渲染待发送的帧
func (p *presenter) frames() []dto.WsFrame {
	pending := p.drain()
	frames := make([]dto.WsFrame, 0, len(pending))

	if _, ok := pending[chat.ChangeThreads]; ok {
		if f, ok := p.threadsFrame(); ok {
			frames = append(frames, f)
		}
	}
	if _, ok := pending[chat.ChangeMessages]; ok {
		if f, ok := p.messagesFrame(); ok {
			frames = append(frames, f)
		}
	}
	if _, ok := pending[chat.ChangeUnread]; ok {
		frames = append(frames, p.unreadFrame())
	}
	return frames
}

func (p *presenter) threadsFrame() (dto.WsFrame, bool) {
	threads, err := service.ToThreadDTOs(p.session.Overview())
	if err != nil {
		log.Error("render threads frame failed", "user_id", p.session.Viewer().ID, "err", err)
		return dto.WsFrame{}, false
	}
	return dto.WsFrame{Type: dto.WsFrameThreads, Data: threads}, true
}

// messagesFrame 只渲染当前打开的会话
func (p *presenter) messagesFrame() (dto.WsFrame, bool) {
	active := p.session.Active()
	if active == 0 {
		return dto.WsFrame{}, false
	}
	msgs, err := service.ToMessageDTOs(p.session.Messages().List(active), p.session.Viewer().ID)
	if err != nil {
		log.Error("render messages frame failed", "thread_id", active, "err", err)
		return dto.WsFrame{}, false
	}
	live := p.session.Live()
	return dto.WsFrame{Type: dto.WsFrameMessages, ThreadID: active, Live: &live, Data: msgs}, true
}

func (p *presenter) unreadFrame() dto.WsFrame {
	tracker := p.session.Unread()
	return dto.WsFrame{
		Type: dto.WsFrameUnread,
		Data: dto.UnreadDTO{Counts: tracker.Counts(), Total: tracker.Total()},
	}
}
