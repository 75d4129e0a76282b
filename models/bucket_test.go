package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	date := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		limitType LimitType
		wantKey   string
	}{
		{"per day uses full date", LimitPerDay, "2026-03-15"},
		{"per month uses year-month", LimitPerMonth, "2026-03"},
		{"per year uses year", LimitPerYear, "2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := BucketFor(tt.limitType, date)
			assert.Equal(t, tt.limitType, bucket.Type)
			assert.Equal(t, tt.wantKey, bucket.Key)
		})
	}

	t.Run("per item has no bucket", func(t *testing.T) {
		bucket := BucketFor(LimitPerItem, date)
		assert.Equal(t, TimeBucket{}, bucket)
	})
}

func TestTimeBucketWindow(t *testing.T) {
	tests := []struct {
		name      string
		bucket    TimeBucket
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "day window",
			bucket:    TimeBucket{Type: LimitPerDay, Key: "2026-03-15"},
			wantStart: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "month window spans calendar month",
			bucket:    TimeBucket{Type: LimitPerMonth, Key: "2026-02"},
			wantStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "year window",
			bucket:    TimeBucket{Type: LimitPerYear, Key: "2026"},
			wantStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "december rolls into next year",
			bucket:    TimeBucket{Type: LimitPerMonth, Key: "2026-12"},
			wantStart: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.bucket.Window()
			require.NoError(t, err)
			assert.True(t, start.Equal(tt.wantStart), "start %v", start)
			assert.True(t, end.Equal(tt.wantEnd), "end %v", end)
		})
	}

	t.Run("per item bucket has no window", func(t *testing.T) {
		_, _, err := TimeBucket{Type: LimitPerItem}.Window()
		assert.Error(t, err)
	})

	t.Run("malformed key is rejected", func(t *testing.T) {
		_, _, err := TimeBucket{Type: LimitPerDay, Key: "not-a-date"}.Window()
		assert.Error(t, err)
	})
}

func TestTimeBucketString(t *testing.T) {
	bucket := TimeBucket{Type: LimitPerMonth, Key: "2026-03"}
	assert.Equal(t, "per_month:2026-03", bucket.String())
}

func TestLimitTypeIsAccumulating(t *testing.T) {
	assert.False(t, LimitPerItem.IsAccumulating())
	assert.True(t, LimitPerDay.IsAccumulating())
	assert.True(t, LimitPerMonth.IsAccumulating())
	assert.True(t, LimitPerYear.IsAccumulating())
	assert.False(t, LimitType("bogus").IsAccumulating())
}
