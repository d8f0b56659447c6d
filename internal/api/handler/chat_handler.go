package handler

import (
	"Atelier/internal/api/dto"
	"Atelier/internal/api/middleware"
	"Atelier/internal/chat"
	"Atelier/internal/pkg/response"
	"Atelier/internal/service"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListThreads 会话列表，带 q 参数时按对方名称筛选
func (s *ChatHandler) ListThreads(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}

	var (
		res []*dto.ThreadDTO
		err error
	)
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		res, err = s.chatService.SearchThreads(c.Request.Context(), viewer, term)
	} else {
		res, err = s.chatService.ListThreads(c.Request.Context(), viewer)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// OpenThread 发起或打开已有会话
func (s *ChatHandler) OpenThread(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	var req dto.OpenThreadReq
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.chatService.OpenThread(c.Request.Context(), viewer, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListMessages 会话消息
func (s *ChatHandler) ListMessages(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	res, err := s.chatService.ListMessages(c.Request.Context(), viewer, threadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息
func (s *ChatHandler) SendMessage(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}
	var req dto.SendMessageReq
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.chatService.SendMessage(c.Request.Context(), viewer, threadID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRead 标记会话已读
func (s *ChatHandler) MarkRead(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	if err := s.chatService.MarkRead(c.Request.Context(), viewer, threadID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Unread 各会话未读数
func (s *ChatHandler) Unread(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	res, err := s.chatService.Unread(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// TotalUnread 未读总数
func (s *ChatHandler) TotalUnread(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	total, err := s.chatService.TotalUnread(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"total": total})
}

// Counterparties 可发起会话的造型师
func (s *ChatHandler) Counterparties(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		return
	}
	res, err := s.chatService.Counterparties(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func identity(c *gin.Context) (chat.Identity, bool) {
	viewer, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, service.UnauthorizedError)
		return chat.Identity{}, false
	}
	return viewer, true
}

// bindJSON 校验失败返回校验错误，其余解析失败统一为参数错误
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		response.Error(c, err)
	} else {
		response.Error(c, service.ErrParamInvalid)
	}
	return false
}

func threadIDParam(c *gin.Context) (uint64, bool) {
	threadID, err := strconv.ParseUint(c.Param("thread_id"), 10, 64)
	if err != nil || threadID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return 0, false
	}
	return threadID, true
}
