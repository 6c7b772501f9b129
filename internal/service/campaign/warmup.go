package campaign

import (
	"math"
	"time"

	"github.com/Notifuse/outreach/internal/domain"
)

const (
	warmupSmallVolume  = 100
	warmupLargeVolume  = 1000
	warmupSmallWindowH = 12.0
	warmupMidWindowH   = 24.0
	warmupLargeWindowH = 48.0
	warmupMinWindowH   = 12.0
)

// ComputeTargetRate returns the emails per hour a campaign should send to finish its
// remaining volume, scaled by engagement. It is 0 only when nothing remains.
func ComputeTargetRate(in domain.WarmupInput, now time.Time) int {
	remaining := float64(in.TotalContacts - in.SentContacts)
	if remaining <= 0 {
		return 0
	}

	var base float64
	if in.TargetDurationHours != nil && *in.TargetDurationHours > 0 {
		base = math.Ceil(remaining / *in.TargetDurationHours)
	} else {
		window := defaultWindowHours(remaining)
		elapsed := 0.0
		if !in.StartedAt.IsZero() {
			elapsed = now.Sub(in.StartedAt).Hours()
		}
		if elapsed > 0 {
			base = math.Ceil(remaining / math.Max(warmupMinWindowH, window-elapsed))
		} else {
			base = math.Ceil(remaining / window)
		}
	}

	rate := base
	if m := in.Metrics; m != nil {
		rate = base * bouncePenalty(m.BounceRate) * openBoost(m.OpenRate) * engagementBoost(m.EngagementScore)
	}

	return int(math.Max(1, math.Ceil(rate)))
}

func defaultWindowHours(remaining float64) float64 {
	switch {
	case remaining < warmupSmallVolume:
		return warmupSmallWindowH
	case remaining < warmupLargeVolume:
		return warmupMidWindowH
	default:
		return warmupLargeWindowH
	}
}

func bouncePenalty(bounceRate float64) float64 {
	return math.Max(0.25, 1-2*bounceRate)
}

func openBoost(openRate float64) float64 {
	switch {
	case openRate >= 0.4:
		return 1.2
	case openRate >= 0.2:
		return 1.0
	default:
		return 0.7
	}
}

func engagementBoost(score float64) float64 {
	switch {
	case score >= 7:
		return 1.2
	case score >= 4:
		return 1.0
	default:
		return 0.8
	}
}
