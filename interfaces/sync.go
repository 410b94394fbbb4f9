package interfaces

import (
	"context"
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
)

// SessionConfig enumerates everything a sync session needs to run.
type SessionConfig struct {
	AccountID         string
	UserID            string
	TenantID          string
	Provider          enum.EmailProvider
	PollInterval      time.Duration
	EnablePushChannel bool
	EnableAnalysis    bool
}

// SessionStatus is a point-in-time snapshot of one session, returned by the
// status endpoint.
type SessionStatus struct {
	AccountID           string             `json:"accountId"`
	Provider            enum.EmailProvider `json:"provider"`
	State               enum.SessionState  `json:"state"`
	LastTriggeredAt     time.Time          `json:"lastTriggeredAt"`
	LastError           string             `json:"lastError,omitempty"`
	ConsecutiveFailures int                `json:"consecutiveFailures"`
}

// AccountSyncResult is the per-account outcome of a start-all operation.
// One failing account never suppresses results for its siblings.
type AccountSyncResult struct {
	AccountID string `json:"accountId"`
	Status    string `json:"status"` // "success" or "error"
	Message   string `json:"message,omitempty"`
}

type SyncService interface {
	StartSession(ctx context.Context, config SessionConfig) error
	StopSession(ctx context.Context, accountID string) error
	StartAllForUser(ctx context.Context, tenantID, userID string) []AccountSyncResult
	// TriggerSync requests one pass for the account; the trigger is dropped
	// (coalesced) when a pass is already in flight. Returns false for unknown
	// accounts and dropped triggers.
	TriggerSync(accountID string) bool
	Status() map[string]SessionStatus
	Stop() error
}
