package security

import (
	"Atelier/internal/api/config"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/redis"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMalformed = errors.New("token 格式不正确")
	ErrTokenInvalid   = errors.New("token 无效或已过期")
	ErrTokenRevoked   = errors.New("token 已注销")
)

var (
	secret []byte
	issuer string
)

// Init 载入签名密钥
func Init(cfg config.JWTConfig) {
	secret = []byte(cfg.Secret)
	issuer = cfg.Issuer
}

// GenerateToken 签发 Token，正式环境由登录服务签发，这里供联调与测试使用
func GenerateToken(userID uint64, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &UserClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}
	return tokenString, nil
}

// ValidateToken 验证 Token 字符串并解析出 Claims
func ValidateToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ExtractSignature 从 Token 字符串中提取签名
func ExtractSignature(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[2] == "" {
		return "", ErrTokenMalformed
	}
	return parts[2], nil
}

// Authenticate 校验签名、黑名单与有效期
func Authenticate(ctx context.Context, tokenString string) (*UserClaims, error) {
	signature, err := ExtractSignature(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := redis.GetValue(ctx, consts.TokenBlacklistKey+signature)
	if err != nil {
		return nil, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked != "" {
		return nil, ErrTokenRevoked
	}
	return ValidateToken(tokenString)
}
