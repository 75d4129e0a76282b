package models

import (
	"fmt"
	"time"
)

// TimeBucket identifies the calendar window an accumulating limit sums
// over: one day, one month, or one year. Per-item limits have no bucket.
type TimeBucket struct {
	Type LimitType `json:"type"`
	Key  string    `json:"key"` // "2006-01-02", "2006-01" or "2006"
}

// BucketFor computes the bucket an item date falls into for a limit type.
// Returns a zero bucket for non-accumulating limit types.
func BucketFor(t LimitType, date time.Time) TimeBucket {
	switch t {
	case LimitPerDay:
		return TimeBucket{Type: t, Key: date.Format("2006-01-02")}
	case LimitPerMonth:
		return TimeBucket{Type: t, Key: date.Format("2006-01")}
	case LimitPerYear:
		return TimeBucket{Type: t, Key: date.Format("2006")}
	default:
		return TimeBucket{}
	}
}

// Window returns the half-open [start, end) interval the bucket covers,
// in UTC.
func (b TimeBucket) Window() (time.Time, time.Time, error) {
	switch b.Type {
	case LimitPerDay:
		start, err := time.ParseInLocation("2006-01-02", b.Key, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid day bucket %q: %w", b.Key, err)
		}
		return start, start.AddDate(0, 0, 1), nil
	case LimitPerMonth:
		start, err := time.ParseInLocation("2006-01", b.Key, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid month bucket %q: %w", b.Key, err)
		}
		return start, start.AddDate(0, 1, 0), nil
	case LimitPerYear:
		start, err := time.ParseInLocation("2006", b.Key, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid year bucket %q: %w", b.Key, err)
		}
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("limit type %q has no time window", b.Type)
	}
}

// String returns a stable representation used in accumulator keys.
func (b TimeBucket) String() string {
	return string(b.Type) + ":" + b.Key
}
