package middleware

import (
	"Atelier/internal/pkg/response"
	"Atelier/internal/service"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdle 超过该时长未使用的限流器会被回收
const limiterIdle = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SendLimiter 按用户限制发消息频率
type SendLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[uint64]*userLimiter
	lastGC   time.Time
}

func NewSendLimiter(perSecond, burst int) *SendLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &SendLimiter{
		rps:      rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[uint64]*userLimiter),
		lastGC:   time.Now(),
	}
}

// Allow 非阻塞判断本次是否放行
func (l *SendLimiter) Allow(userID uint64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > limiterIdle {
		for id, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > limiterIdle {
				delete(l.limiters, id)
			}
		}
		l.lastGC = now
	}

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// Middleware 用于 REST 发送接口
func (l *SendLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if ok && !l.Allow(identity.ID) {
			response.Error(c, service.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
