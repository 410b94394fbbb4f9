package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// Email is one canonical index entry. A (account_id, provider_message_id)
// pair maps to exactly one row; re-ingestion merges mutable fields and never
// inserts a duplicate.
type Email struct {
	ID                string             `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID         string             `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_account_provider_message;not null"`
	Provider          enum.EmailProvider `gorm:"column:provider;type:varchar(50);index;not null"`
	ProviderMessageID string             `gorm:"column:provider_message_id;type:varchar(255);uniqueIndex:idx_account_provider_message;not null"`
	ThreadID          string             `gorm:"column:thread_id;type:varchar(255);index"`

	Subject     string `gorm:"column:subject;type:varchar(1000)"`
	FromAddress string `gorm:"column:from_address;type:varchar(255);index"`
	FromName    string `gorm:"column:from_name;type:varchar(255)"`
	Snippet     string `gorm:"column:snippet;type:text"`

	ReadFlag bool           `gorm:"column:read_flag;not null;default:false"`
	Labels   pq.StringArray `gorm:"column:labels;type:text[]"`

	// ProviderUpdatedAt is the provider-reported modification time and is the
	// merge watermark: stale provider data never overwrites newer local state.
	ProviderUpdatedAt *time.Time `gorm:"column:provider_updated_at;type:timestamp"`
	ReceivedAt        *time.Time `gorm:"column:received_at;type:timestamp;index"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}
