package enums

import "fmt"

// ReviewQueue selects a moderation queue.
type ReviewQueue string

const (
	ReviewQueuePending ReviewQueue = "pending"
	ReviewQueueFlagged ReviewQueue = "flagged"
)

var validReviewQueues = []ReviewQueue{
	ReviewQueuePending,
	ReviewQueueFlagged,
}

// String implements fmt.Stringer.
func (q ReviewQueue) String() string {
	return string(q)
}

// IsValid reports whether the value is a known ReviewQueue.
func (q ReviewQueue) IsValid() bool {
	for _, candidate := range validReviewQueues {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseReviewQueue converts raw input into a ReviewQueue; empty input yields pending.
func ParseReviewQueue(value string) (ReviewQueue, error) {
	if value == "" {
		return ReviewQueuePending, nil
	}
	for _, candidate := range validReviewQueues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid review queue %q", value)
}
