package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// Account is a single mailbox credential/configuration owned by one user.
// The account-management layer of the CRM creates and mutates these rows;
// the sync core only reads them.
type Account struct {
	ID           string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID     string             `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`
	UserID       string             `gorm:"column:user_id;type:varchar(50);index;not null" json:"userId"`
	Provider     enum.EmailProvider `gorm:"column:provider;type:varchar(50);index;not null" json:"provider"`
	EmailAddress string             `gorm:"column:email_address;type:varchar(255);index" json:"emailAddress"`
	Active       bool               `gorm:"column:active;not null;default:true" json:"active"`

	// Per-mailbox opt-out for downstream AI analysis
	AnalysisEnabled bool `gorm:"column:analysis_enabled;not null;default:true" json:"analysisEnabled"`

	// IMAP connection settings, empty for OAuth providers
	ImapServer   string             `gorm:"column:imap_server;type:varchar(255)" json:"imapServer"`
	ImapPort     int                `gorm:"column:imap_port" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255)" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(255)" json:"-"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(50);default:tls" json:"imapSecurity"`

	// Reference handed to the token capability for OAuth providers.
	// Token acquisition and refresh live outside the sync core.
	TokenRef string `gorm:"column:token_ref;type:varchar(255)" json:"-"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Account) TableName() string {
	return "mail_accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}
