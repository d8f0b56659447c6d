package wire

import (
	"Atelier/internal/api"
	"Atelier/internal/api/config"
	"Atelier/internal/api/handler"
	"Atelier/internal/api/middleware"
	"Atelier/internal/chat"
	"Atelier/internal/job"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/cron"
	"Atelier/internal/pkg/kafka"
	"Atelier/internal/pkg/redis"
	"Atelier/internal/pkg/roster"
	"Atelier/internal/repository"
	"Atelier/internal/service"
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager // push_mode=canal 时非空
	CronMgr      *cron.Manager
	WsHandler    *handler.WsHandler
}

func BuildApplication(db *gorm.DB, cfg *config.Config) (*ApplicationContainer, error) {
	threadRepo := repository.NewThreadRepo(db)
	messageRepo := repository.NewMessageRepo(db)

	// direct: 写库后立即发布；canal: 由 binlog 消费者发布
	var publisher service.EventPublisher
	if cfg.Chat.PushMode == config.PushModeDirect {
		publisher = service.RedisPublisher
	}
	store := service.NewChatStore(threadRepo, messageRepo, publisher)
	rosterClient := roster.NewClient(cfg.Roster)

	chatService := service.NewChatService(chat.Stores{
		Threads:  store,
		Messages: store,
		Unread:   store,
		Broker:   redis.NewBroker(redis.Rdb),
		Roster:   rosterClient,
		Members:  rosterClient,
	}, chat.Options{
		AdministrationID: cfg.Chat.AdministrationID,
		Labels: chat.Labels{
			Administration: cfg.Chat.AdministrationName,
			StaffFallback:  cfg.Chat.StaffFallback,
			MemberFallback: cfg.Chat.MemberFallback,
		},
	})

	limiter := middleware.NewSendLimiter(cfg.Chat.SendRate, cfg.Chat.SendBurst)
	wsHandler := handler.NewWsHandler(chatService, limiter, time.Duration(cfg.Chat.PollInterval)*time.Second)
	handlers := &api.HandlersGroup{
		ChatHandler: handler.NewChatHandler(chatService),
		WsHandler:   wsHandler,
		SendLimiter: limiter,
	}
	router := api.SetupRouter(handlers)

	var kafkaMgr *kafka.ConsumerManager
	if cfg.Chat.PushMode == config.PushModeCanal {
		var err error
		kafkaMgr, err = kafka.NewConsumerManager(cfg, func(ctx context.Context, ev chat.Event) error {
			return redis.PublishEvent(ctx, ev, consts.PublishSourceCanal)
		})
		if err != nil {
			return nil, err
		}
	}

	cronMgr := cron.NewCronManager(cfg.Cron.RosterRefresh, job.NewRosterRefreshJob(rosterClient, redis.Locker{}))

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		WsHandler:    wsHandler,
	}, nil
}
