package domain

import "time"

// WarmupMetrics are the engagement signals of a campaign, rates in [0,1] and score in [0,10]
type WarmupMetrics struct {
	OpenRate        float64 `json:"open_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	EngagementScore float64 `json:"engagement_score"`
}

// WarmupInput feeds the target send rate calculation
type WarmupInput struct {
	TotalContacts       int            `json:"total_contacts"`
	SentContacts        int            `json:"sent_contacts"`
	StartedAt           time.Time      `json:"started_at"`
	TargetDurationHours *float64       `json:"target_duration_hours,omitempty"`
	Metrics             *WarmupMetrics `json:"metrics,omitempty"`
}
