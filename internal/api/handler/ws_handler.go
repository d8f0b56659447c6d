package handler

import (
	"Atelier/internal/api/dto"
	"Atelier/internal/api/middleware"
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"Atelier/internal/pkg/metrics"
	"Atelier/internal/pkg/response"
	"Atelier/internal/pkg/util"
	"Atelier/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 16 << 10
	outboundBuffer = 32
	commandTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	chatService  service.ChatService
	limiter      *middleware.SendLimiter
	pollInterval time.Duration

	// base 在服务退出时取消，断开所有长连接
	base     context.Context
	shutdown context.CancelFunc
}

func NewWsHandler(chatService service.ChatService, limiter *middleware.SendLimiter, pollInterval time.Duration) *WsHandler {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	base, shutdown := context.WithCancel(context.Background())
	return &WsHandler{
		chatService:  chatService,
		limiter:      limiter,
		pollInterval: pollInterval,
		base:         base,
		shutdown:     shutdown,
	}
}

// Shutdown 关闭所有 websocket 会话
func (s *WsHandler) Shutdown() {
	s.shutdown()
}

// Connect 建立聊天会话的 websocket 连接
func (s *WsHandler) Connect(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// 连接生命周期独立于 HTTP 请求，保留 trace_id 与 user_id
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	session, err := s.chatService.OpenSession(ctx, viewer)
	if err != nil {
		code, msg := response.Resolve(err)
		_ = writeFrame(conn, dto.WsFrame{Type: dto.WsFrameError, Code: code, Message: msg})
		return
	}
	defer session.Close()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	log.InfoContext(ctx, "用户 WS 连接已建立", "user_id", viewer.ID, "role", viewer.Role.String())

	p := newPresenter(session)
	out := make(chan dto.WsFrame, outboundBuffer)
	reply := func(f dto.WsFrame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}

	go s.readLoop(ctx, cancel, conn, session, reply)
	go s.pollLoop(ctx, session)

	// 首帧：目录与未读数
	p.mark(chat.Change{Kind: chat.ChangeThreads})
	p.mark(chat.Change{Kind: chat.ChangeUnread})

	s.writeLoop(ctx, conn, p, out)
	log.InfoContext(ctx, "用户 WS 连接已断开", "user_id", viewer.ID)
}

// writeLoop 唯一的写协程
func (s *WsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, p *presenter, out <-chan dto.WsFrame) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-out:
			if err := writeFrame(conn, f); err != nil {
				log.WarnContext(ctx, "WS 推送失败", "err", err)
				return
			}
		case <-p.notify:
			for _, f := range p.frames() {
				if err := writeFrame(conn, f); err != nil {
					log.WarnContext(ctx, "WS 推送失败", "err", err)
					return
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop 读取客户端指令，连接断开时取消 ctx
func (s *WsHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, session *chat.Session, reply func(dto.WsFrame)) {
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WarnContext(ctx, "WS 读取失败", "err", err)
			}
			return
		}

		var cmd dto.WsCommand
		if err = json.Unmarshal(data, &cmd); err != nil {
			reply(errorFrame(0, service.ErrParamInvalid))
			continue
		}
		if err = util.ValidateDTO(&cmd); err != nil {
			reply(dto.WsFrame{Type: dto.WsFrameError, Code: response.BadRequest, Message: err.Error()})
			continue
		}

		cmdCtx, cmdCancel := context.WithTimeout(ctx, commandTimeout)
		if f, ok := s.handle(cmdCtx, session, &cmd); ok {
			reply(f)
		}
		cmdCancel()
	}
}

// handle 执行一条指令，返回需要回给客户端的帧
func (s *WsHandler) handle(ctx context.Context, session *chat.Session, cmd *dto.WsCommand) (dto.WsFrame, bool) {
	viewer := session.Viewer()

	switch cmd.Op {
	case dto.WsOpPing:
		return dto.WsFrame{Type: dto.WsFramePong}, true

	case dto.WsOpActivate:
		if err := session.Activate(ctx, cmd.ThreadID); err != nil {
			return errorFrame(cmd.ThreadID, err), true
		}
		return dto.WsFrame{}, false

	case dto.WsOpDeactivate:
		session.Deactivate()
		return dto.WsFrame{}, false

	case dto.WsOpSend:
		if s.limiter != nil && !s.limiter.Allow(viewer.ID) {
			return errorFrame(cmd.ThreadID, service.ErrRateLimited), true
		}
		var (
			msg *model.Message
			err error
		)
		if cmd.ThreadID != 0 && cmd.ThreadID != session.Active() {
			msg, err = session.SendTo(ctx, cmd.ThreadID, cmd.Content)
		} else {
			msg, err = session.Send(ctx, cmd.Content)
		}
		if err != nil {
			return errorFrame(cmd.ThreadID, err), true
		}
		d, err := service.ToMessageDTO(msg, viewer.ID)
		if err != nil {
			return errorFrame(msg.ThreadID, err), true
		}
		return dto.WsFrame{Type: dto.WsFrameSent, ThreadID: msg.ThreadID, Data: d}, true

	case dto.WsOpStart:
		thread, err := session.StartConversation(ctx, cmd.CounterpartyID, cmd.Kind)
		if err != nil {
			return errorFrame(0, err), true
		}
		return dto.WsFrame{Type: dto.WsFrameStarted, ThreadID: thread.ID, Data: session.Router().LabelFor(thread)}, true
	}
	return errorFrame(0, service.ErrParamInvalid), true
}

// pollLoop 推送不可用时定期刷新
func (s *WsHandler) pollLoop(ctx context.Context, session *chat.Session) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := session.Poll(ctx); err != nil && ctx.Err() == nil {
				log.WarnContext(ctx, "poll fallback failed", "err", err)
			}
		}
	}
}

func errorFrame(threadID uint64, err error) dto.WsFrame {
	code, msg := response.Resolve(err)
	return dto.WsFrame{Type: dto.WsFrameError, ThreadID: threadID, Code: code, Message: msg}
}

func writeFrame(conn *websocket.Conn, f dto.WsFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
