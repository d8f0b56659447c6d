package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LiveChannels 当前打开的会话推送通道数
	LiveChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "live_channels",
		Help:      "Number of open per-thread push channels.",
	})

	// ChannelOpenFailures 推送通道打开失败次数（含重试）
	ChannelOpenFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "channel_open_failures_total",
		Help:      "Failed attempts to open a push channel.",
	})

	// AppliedMessages 合并进消息日志的消息，result=inserted|merged
	AppliedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "applied_messages_total",
		Help:      "Messages merged into a message log.",
	}, []string{"result"})

	// DroppedEvents 被丢弃的推送事件
	DroppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "dropped_events_total",
		Help:      "Push events dropped before reaching a message log.",
	}, []string{"reason"})

	// PublishedEvents 发布到推送通道的事件
	PublishedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "published_events_total",
		Help:      "Events published to per-thread push channels.",
	}, []string{"type", "source"})

	// ActiveSessions 当前 websocket 会话数
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier",
		Subsystem: "chat",
		Name:      "active_sessions",
		Help:      "Connected websocket chat sessions.",
	})
)

func init() {
	prometheus.MustRegister(
		LiveChannels,
		ChannelOpenFailures,
		AppliedMessages,
		DroppedEvents,
		PublishedEvents,
		ActiveSessions,
	)
}

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
