package minio

import (
	"Atelier/internal/api/config"
	"context"
	"fmt"
	log "log/slog"
	"net/url"
	"strings"
	"time"
)

const defaultPresignExpiry = 60 * time.Minute

// GetPublicURL 公开桶直链
func GetPublicURL(objectName string) string {
	cfg := config.Cfg.MinIO
	return fmt.Sprintf("https://%s/%s/%s", cfg.ExternalEndpoint, AvatarBucket, strings.TrimPrefix(objectName, "/"))
}

// AvatarURL 头像对象键转为可访问地址；已是完整地址或未初始化时原样返回
func AvatarURL(ctx context.Context, objectName string) string {
	if objectName == "" || strings.HasPrefix(objectName, "http://") || strings.HasPrefix(objectName, "https://") {
		return objectName
	}
	if Client == nil {
		return objectName
	}

	cfg := config.Cfg.MinIO
	if cfg.UsePublicLink {
		return GetPublicURL(objectName)
	}

	expiry := defaultPresignExpiry
	if cfg.PresignExpiry > 0 {
		expiry = time.Duration(cfg.PresignExpiry) * time.Minute
	}
	u, err := Client.PresignedGetObject(ctx, AvatarBucket, objectName, expiry, url.Values{})
	if err != nil {
		log.WarnContext(ctx, "presign avatar failed", "object", objectName, "err", err)
		return GetPublicURL(objectName)
	}
	return u.String()
}
