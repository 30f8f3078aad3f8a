package virustotal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// StatusCompleted is the terminal analysis status.
const StatusCompleted = "completed"

const guiFileURL = "https://www.virustotal.com/gui/file/"

// ErrAnalysisTimeout is returned when an analysis does not complete within the poll policy.
var ErrAnalysisTimeout = errors.New("timed out waiting for analysis")

// flaggedCategories are the stat categories that fail a release.
var flaggedCategories = []string{"failure", "malicious", "suspicious"}

// IsFlaggedCategory reports whether a non-zero count in category fails a release.
func IsFlaggedCategory(category string) bool {
	for _, c := range flaggedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Analysis is the state of a scan as reported by the service.
type Analysis struct {
	ID     string
	Status string
	Stats  map[string]int
	SHA256 string
}

// Stat is a single result category count.
type Stat struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Completed reports whether the analysis reached its terminal status.
func (a Analysis) Completed() bool {
	return a.Status == StatusCompleted
}

// Flagged reports whether any failure, malicious or suspicious count is non-zero.
func (a Analysis) Flagged() bool {
	for _, category := range flaggedCategories {
		if a.Stats[category] > 0 {
			return true
		}
	}
	return false
}

// SortedStats returns the stats ordered by category name.
func (a Analysis) SortedStats() []Stat {
	stats := make([]Stat, 0, len(a.Stats))
	for category, count := range a.Stats {
		stats = append(stats, Stat{Category: category, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Category < stats[j].Category
	})
	return stats
}

// FileURL returns the VirusTotal results page for a file digest.
func FileURL(sha256 string) string {
	return guiFileURL + sha256
}

// PollPolicy bounds how long WaitForAnalysis keeps polling.
type PollPolicy struct {
	Interval    time.Duration
	Timeout     time.Duration // 0 means no elapsed-time bound
	MaxAttempts int           // 0 means no attempt bound
}

// DefaultPollPolicy polls every 10 seconds for up to 30 minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval: 10 * time.Second,
		Timeout:  30 * time.Minute,
	}
}

// AnalysisGetter fetches analysis state.
type AnalysisGetter interface {
	GetAnalysis(ctx context.Context, id string) (Analysis, error)
}

// WaitForAnalysis polls id until it completes, the policy is exhausted or ctx is done.
// On exhaustion the last seen analysis is returned with an ErrAnalysisTimeout error.
func WaitForAnalysis(ctx context.Context, getter AnalysisGetter, id string, policy PollPolicy) (Analysis, error) {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollPolicy().Interval
	}
	if policy.Timeout <= 0 && policy.MaxAttempts <= 0 {
		policy.Timeout = DefaultPollPolicy().Timeout
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		analysis, err := getter.GetAnalysis(ctx, id)
		if err != nil {
			return Analysis{}, err
		}
		if analysis.Completed() {
			return analysis, nil
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return analysis, fmt.Errorf("%w: analysis %s still %q after %d polls", ErrAnalysisTimeout, id, analysis.Status, attempt)
		}
		if policy.Timeout > 0 && time.Since(start)+policy.Interval > policy.Timeout {
			return analysis, fmt.Errorf("%w: analysis %s still %q after %s", ErrAnalysisTimeout, id, analysis.Status, time.Since(start).Round(time.Second))
		}

		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return analysis, ctx.Err()
		case <-timer.C:
		}
	}
}
