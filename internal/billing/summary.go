package billing

import (
	"sort"
	"time"
)

// ImageSummary aggregates usage for one (user, image) pair. Active
// intervals contribute an estimate against "now"; completed intervals
// contribute their recorded values. ActiveCost and CompletedCost break
// TotalCost out by source so a caller can show current spend rate
// separately from settled spend.
type ImageSummary struct {
	ImageID          string
	Containers       []Interval
	TotalContainers  int
	TotalMinutes     int
	TotalCost        float64
	ActiveCost       float64
	CompletedCost    float64
	ActiveContainers int
	LastActivity     time.Time
}

// SummaryByImage builds the usage summary for one user/image pair.
func (l *Ledger) SummaryByImage(userID, imageID string) ImageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryByImageLocked(userID, imageID)
}

func (l *Ledger) summaryByImageLocked(userID, imageID string) ImageSummary {
	now := l.now()
	summary := ImageSummary{ImageID: imageID}

	for _, iv := range l.activeIntervalsLocked(userID, imageID) {
		estimate := iv
		estimate.DurationMinutes = ceilMinutes(iv.Start, now)
		estimate.Cost = round2(l.rate * float64(estimate.DurationMinutes))
		summary.Containers = append(summary.Containers, estimate)
		summary.ActiveContainers++
		summary.TotalMinutes += estimate.DurationMinutes
		summary.TotalCost += estimate.Cost
		summary.ActiveCost += estimate.Cost
		if iv.Start.After(summary.LastActivity) {
			summary.LastActivity = iv.Start
		}
	}

	for _, iv := range l.completedIntervalsLocked(userID, imageID) {
		summary.Containers = append(summary.Containers, iv)
		summary.TotalMinutes += iv.DurationMinutes
		summary.TotalCost += iv.Cost
		summary.CompletedCost += iv.Cost
		if iv.End != nil && iv.End.After(summary.LastActivity) {
			summary.LastActivity = *iv.End
		}
	}

	summary.TotalContainers = len(summary.Containers)
	summary.TotalCost = round2(summary.TotalCost)
	summary.ActiveCost = round2(summary.ActiveCost)
	summary.CompletedCost = round2(summary.CompletedCost)
	return summary
}

// SummaryAllImages returns one ImageSummary per image the user has any
// usage for, sorted by last activity descending.
func (l *Ledger) SummaryAllImages(userID string) []ImageSummary {
	l.mu.Lock()
	images := make(map[string]struct{})
	for _, iv := range l.active {
		if iv.UserID == userID {
			images[iv.ImageID] = struct{}{}
		}
	}
	for _, ivs := range l.history {
		for _, iv := range ivs {
			if iv.UserID == userID {
				images[iv.ImageID] = struct{}{}
			}
		}
	}

	summaries := make([]ImageSummary, 0, len(images))
	for imageID := range images {
		summaries = append(summaries, l.summaryByImageLocked(userID, imageID))
	}
	l.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries
}
