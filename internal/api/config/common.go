package config

import (
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量优先
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env not loaded", "err", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	Cfg = &cfg

	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", 5)
	viper.SetDefault("chat.administration_id", 0)
	viper.SetDefault("chat.administration_name", "PAWA ATELIER")
	viper.SetDefault("chat.staff_fallback", "Sanctuary Artisan")
	viper.SetDefault("chat.member_fallback", "Member")
	viper.SetDefault("chat.push_mode", PushModeDirect)
	viper.SetDefault("chat.poll_interval", 15)
	viper.SetDefault("chat.send_rate", 5)
	viper.SetDefault("chat.send_burst", 10)
	viper.SetDefault("roster.timeout", 5)
	viper.SetDefault("roster.cache_ttl", 300)
	viper.SetDefault("minio.presign_expiry", 60)
	viper.SetDefault("cron.roster_refresh", "0 */5 * * * *")
}

func (c *Config) validate() error {
	switch c.Chat.PushMode {
	case PushModeDirect:
	case PushModeCanal:
		if !c.Kafka.Enable {
			return errors.New("chat.push_mode canal requires kafka.enable")
		}
	default:
		return fmt.Errorf("unknown chat.push_mode %q", c.Chat.PushMode)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	return nil
}
