package repository

import (
	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

type Repositories struct {
	AccountRepository             interfaces.AccountRepository
	EmailRepository               interfaces.EmailRepository
	SyncStateRepository           interfaces.SyncStateRepository
	AnalysisCacheRepository       interfaces.AnalysisCacheRepository
	WebhookSubscriptionRepository interfaces.WebhookSubscriptionRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:             NewAccountRepository(db),
		EmailRepository:               NewEmailRepository(db),
		SyncStateRepository:           NewSyncStateRepository(db),
		AnalysisCacheRepository:       NewAnalysisCacheRepository(db),
		WebhookSubscriptionRepository: NewWebhookSubscriptionRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Email{},
		&models.SyncState{},
		&models.AnalysisCacheEntry{},
		&models.WebhookSubscription{},
	)
}
