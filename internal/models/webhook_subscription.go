package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// WebhookSubscription is the registration handle for a provider push channel.
// Providers without push support have no row; polling is the sole mechanism.
type WebhookSubscription struct {
	ID        string             `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID string             `gorm:"column:account_id;type:varchar(50);uniqueIndex;not null"`
	Provider  enum.EmailProvider `gorm:"column:provider;type:varchar(50);index;not null"`
	ChannelID string             `gorm:"column:channel_id;type:varchar(255);not null"`
	Resource  string             `gorm:"column:resource;type:varchar(500)"`
	// ClientState is the shared secret echoed back by the provider; inbound
	// notifications failing this check are rejected at the boundary.
	ClientState string    `gorm:"column:client_state;type:varchar(255);not null"`
	ExpiresAt   time.Time `gorm:"column:expires_at;type:timestamp;index"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

func (w *WebhookSubscription) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = utils.GenerateNanoIDWithPrefix("whsub", 16)
	}
	return nil
}
