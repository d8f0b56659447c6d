package config

// Config 配置主体
type Config struct {
	Server               ServerConfig               `mapstructure:"server"`
	DB                   DBConfig                   `mapstructure:"database"`
	Redis                RedisConfig                `mapstructure:"redis"`
	Logstash             LogstashConfig             `mapstructure:"logstash"`
	MinIO                MinIOConfig                `mapstructure:"minio"`
	Kafka                KafkaConfig                `mapstructure:"kafka"`
	KafkaMessageConsumer KafkaMessageConsumerConfig `mapstructure:"kafka_message_consumer"`
	Roster               RosterConfig               `mapstructure:"roster"`
	Chat                 ChatConfig                 `mapstructure:"chat"`
	JWT                  JWTConfig                  `mapstructure:"jwt"`
	Cron                 CronConfig                 `mapstructure:"cron"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogstashConfig 远程日志
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	InternalEndpoint string `mapstructure:"internal_endpoint"`
	ExternalEndpoint string `mapstructure:"external_endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	AvatarBucket     string `mapstructure:"avatar_bucket"`
	InternalUseSSL   bool   `mapstructure:"internal_use_ssl"`
	UsePublicLink    bool   `mapstructure:"use_public_link"`
	PresignExpiry    int    `mapstructure:"presign_expiry"` // 分钟
}

type KafkaConfig struct {
	Enable   bool           `mapstructure:"enable"`
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

// KafkaMessageConsumerConfig canal 推送的 chat_messages 变更
type KafkaMessageConsumerConfig struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// RosterConfig 造型师名录服务
type RosterConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Token    string `mapstructure:"token"`
	Timeout  int    `mapstructure:"timeout"`   // 秒
	CacheTTL int    `mapstructure:"cache_ttl"` // 秒
}

// ChatConfig 聊天核心配置
type ChatConfig struct {
	AdministrationID   uint64 `mapstructure:"administration_id"`
	AdministrationName string `mapstructure:"administration_name"`
	StaffFallback      string `mapstructure:"staff_fallback"`
	MemberFallback     string `mapstructure:"member_fallback"`
	PushMode           string `mapstructure:"push_mode"`     // direct | canal
	PollInterval       int    `mapstructure:"poll_interval"` // 秒
	SendRate           int    `mapstructure:"send_rate"`     // 每秒
	SendBurst          int    `mapstructure:"send_burst"`
}

const (
	PushModeDirect = "direct"
	PushModeCanal  = "canal"
)

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// CronConfig 定时任务表达式
type CronConfig struct {
	RosterRefresh string `mapstructure:"roster_refresh"`
}
