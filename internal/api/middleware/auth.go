package middleware

import (
	"Atelier/internal/chat"
	"Atelier/internal/pkg/logger"
	"Atelier/internal/pkg/response"
	"Atelier/internal/pkg/security"
	"context"
	"errors"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		claims, err := security.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrTokenMalformed):
				response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			case errors.Is(err, security.ErrTokenInvalid), errors.Is(err, security.ErrTokenRevoked):
				response.Fail(c, response.Unauthorized, "Token 无效或已过期")
			default:
				log.ErrorContext(c.Request.Context(), "authenticate failed", "err", err)
				response.Fail(c, response.InternalServerError, "未知错误")
			}
			c.Abort()
			return
		}

		SetIdentity(c, claims)
		c.Next()
	}
}

// SetIdentity 写入当前用户
func SetIdentity(c *gin.Context, claims *security.UserClaims) {
	c.Set(logger.UserIDKey, claims.UserID)
	c.Set("roles", claims.Roles)
	c.Set(identityKey, claims.Identity())

	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey, claims.UserID)
	c.Request = c.Request.WithContext(ctx)
}

// IdentityFrom 读取 AuthMiddleware 写入的身份
func IdentityFrom(c *gin.Context) (chat.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return chat.Identity{}, false
	}
	id, ok := v.(chat.Identity)
	return id, ok
}

// bearerToken 优先取 Authorization 头，websocket 握手无法带头时取 token 查询参数
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c.GetHeader("Upgrade") != "" {
		return c.Query("token")
	}
	return ""
}
