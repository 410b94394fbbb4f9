package config

import (
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12233"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	// PublicUrl is the externally reachable base url, used for provider webhook callbacks
	PublicUrl string `env:"MAILSYNC_PUBLIC_URL"`
	Logger    *logger.Config
	Tracing   *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"MAILSYNC_POSTGRES_HOST,required"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT,required"`
	User            string `env:"MAILSYNC_POSTGRES_USER,required"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE" envDefault:"require"`
}

type SyncConfig struct {
	PollInterval           time.Duration `env:"SYNC_POLL_INTERVAL" envDefault:"2m"`
	PassTimeout            time.Duration `env:"SYNC_PASS_TIMEOUT" envDefault:"90s"`
	BackoffBase            time.Duration `env:"SYNC_BACKOFF_BASE" envDefault:"5s"`
	BackoffMax             time.Duration `env:"SYNC_BACKOFF_MAX" envDefault:"10m"`
	MaxConsecutiveFailures int           `env:"SYNC_MAX_CONSECUTIVE_FAILURES" envDefault:"10"`
	EnablePushChannels     bool          `env:"SYNC_ENABLE_PUSH_CHANNELS" envDefault:"true"`
	EnableAnalysis         bool          `env:"SYNC_ENABLE_ANALYSIS" envDefault:"true"`
}

type CacheConfig struct {
	AnalysisTTL time.Duration `env:"ANALYSIS_CACHE_TTL" envDefault:"24h"`
}

type AIServiceConfig struct {
	Url    string `env:"AI_SERVICE_URL" envDefault:"https://api.aware-ai.internal" validate:"required"`
	ApiKey string `env:"AI_SERVICE_API_KEY"`
}

type TokenServiceConfig struct {
	Url    string `env:"TOKEN_SERVICE_URL"`
	ApiKey string `env:"TOKEN_SERVICE_API_KEY"`
}

type GmailConfig struct {
	PubSubTopic string `env:"GMAIL_PUBSUB_TOPIC"`
}

type CronConfig struct {
	CronScheduleResyncHeartbeat    string `env:"CRON_SCHEDULE_RESYNC_HEARTBEAT" envDefault:"0 */10 * * * *"`
	CronScheduleCacheSweep         string `env:"CRON_SCHEDULE_CACHE_SWEEP" envDefault:"0 0 * * * *"`
	CronSchedulePushChannelRenewal string `env:"CRON_SCHEDULE_PUSH_CHANNEL_RENEWAL" envDefault:"0 */30 * * * *"`
}
