package kafka

import (
	"Atelier/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	messagesConsumer sarama.ConsumerGroup
	messagesHandler  sarama.ConsumerGroupHandler
	messagesTopic    string
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, publish PublishFunc) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	messagesConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaMessageConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		messagesConsumer: messagesConsumer,
		messagesHandler:  NewMessagesHandler(publish, nil),
		messagesTopic:    cfg.KafkaMessageConsumer.Topic,
	}, nil
}

// Start 启动所有消费者，阻塞到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.messagesConsumer.Errors() {
			log.Error("chat messages consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("Chat messages consumer started", "topic", m.messagesTopic)
		for {
			if err := m.messagesConsumer.Consume(ctx, []string{m.messagesTopic}, m.messagesHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.messagesConsumer.Close(); err != nil {
		log.Error("Failed to close chat messages consumer", "err", err)
	}
	return nil
}
