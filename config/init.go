package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

type Config struct {
	AppConfig          *AppConfig
	Logger             *logger.Config
	Tracing            *tracing.JaegerConfig
	DatabaseConfig     *DatabaseConfig
	SyncConfig         *SyncConfig
	CacheConfig        *CacheConfig
	AIServiceConfig    *AIServiceConfig
	TokenServiceConfig *TokenServiceConfig
	GmailConfig        *GmailConfig
	CronConfig         *CronConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:          &AppConfig{},
		Logger:             &logger.Config{},
		Tracing:            &tracing.JaegerConfig{},
		DatabaseConfig:     &DatabaseConfig{},
		SyncConfig:         &SyncConfig{},
		CacheConfig:        &CacheConfig{},
		AIServiceConfig:    &AIServiceConfig{},
		TokenServiceConfig: &TokenServiceConfig{},
		GmailConfig:        &GmailConfig{},
		CronConfig:         &CronConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailsync config: %v", err)
	}

	return config, nil
}
