package logger

import (
	"Atelier/internal/api/config"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupGin 访问日志与 panic 恢复
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: []string{"/metrics", "/api/ping"},
		Formatter: func(p gin.LogFormatterParams) string {
			var traceID string
			var userID uint64
			if p.Keys != nil {
				traceID, _ = p.Keys[TraceIDKey].(string)
				userID, _ = p.Keys[UserIDKey].(uint64)
			}
			if traceID == "" && p.Request != nil {
				traceID, _ = p.Request.Context().Value(TraceIDKey).(string)
			}

			return fmt.Sprintf(
				`{"time":"%s","level":"INFO","msg":"GIN_ACCESS","trace_id":"%s","user_id":%d,"log_token":"%s","target_index":"%s","method":"%s","path":"%s","client_ip":"%s","status":%d,"latency":"%v","error":%q}`+"\n",
				p.TimeStamp.Format(time.RFC3339),
				traceID,
				userID,
				config.Cfg.Logstash.Token,
				config.Cfg.Logstash.Index,
				p.Method,
				p.Path,
				p.ClientIP,
				p.StatusCode,
				p.Latency,
				p.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())
}
