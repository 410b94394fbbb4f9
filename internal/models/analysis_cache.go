package models

import (
	"time"
)

// AnalysisCacheEntry memoizes one AI analysis result per email. An entry is
// valid while now < ExpiresAt; expiry is a logical miss, rows are swept by a
// background job rather than deleted eagerly.
type AnalysisCacheEntry struct {
	EmailID        string    `gorm:"column:email_id;type:varchar(50);primaryKey"`
	AnalysisResult JSONMap   `gorm:"column:analysis_result;type:jsonb"`
	DraftResult    JSONMap   `gorm:"column:draft_result;type:jsonb"`
	ComputedAt     time.Time `gorm:"column:computed_at;type:timestamp;not null"`
	ExpiresAt      time.Time `gorm:"column:expires_at;type:timestamp;index;not null"`
}

func (AnalysisCacheEntry) TableName() string {
	return "email_analysis_cache"
}

// Valid reports whether the entry is still fresh at the given time.
func (e *AnalysisCacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
