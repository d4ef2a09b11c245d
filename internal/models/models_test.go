package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	// 2024-03-10 is a Sunday.
	b := BucketFor(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, TimeBucket{Weekday: 7, BlockStart: 20}, b)

	b = BucketFor(time.Date(2024, 3, 11, 5, 0, 0, 0, time.UTC))
	assert.Equal(t, TimeBucket{Weekday: 1, BlockStart: 4}, b)
	assert.Equal(t, "Mon 04:00-08:00", b.String())
}

func TestAllBuckets(t *testing.T) {
	all := AllBuckets()
	require.Len(t, all, BucketsPerWeek)
	for i, b := range all {
		assert.True(t, b.Valid())
		assert.Equal(t, i, b.Index())
		if i > 0 {
			assert.True(t, all[i-1].Less(b))
		}
	}
	assert.False(t, TimeBucket{Weekday: 0, BlockStart: 0}.Valid())
	assert.False(t, TimeBucket{Weekday: 1, BlockStart: 3}.Valid())
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("south")
	require.NoError(t, err)
	assert.Equal(t, RegionSouth, r)

	r, err = ParseRegion("")
	require.NoError(t, err)
	assert.Equal(t, RegionAll, r)

	r, err = ParseRegion("All India")
	require.NoError(t, err)
	assert.Equal(t, RegionAll, r)

	_, err = ParseRegion("Atlantis")
	assert.Error(t, err)
}
