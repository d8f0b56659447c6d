package security

import (
	"Atelier/internal/chat"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims Token 中的业务信息，由登录服务签发
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity 转为聊天身份
func (c *UserClaims) Identity() chat.Identity {
	return chat.Identity{ID: c.UserID, Role: chat.RoleFromClaims(c.Roles)}
}
