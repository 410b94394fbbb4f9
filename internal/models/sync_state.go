package models

import (
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
)

// SyncState holds the opaque provider cursor for one (account, provider) pair.
// The cursor payload is never interpreted here, only passed back to the
// provider gateway on the next pass.
type SyncState struct {
	ID        string             `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountID string             `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_account_provider;not null"`
	Provider  enum.EmailProvider `gorm:"column:provider;type:varchar(50);uniqueIndex:idx_account_provider;not null"`
	Cursor    string             `gorm:"column:cursor;type:text"`
	UpdatedAt time.Time          `gorm:"column:updated_at;type:timestamp;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
