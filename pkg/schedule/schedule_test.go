package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineDateAndTime(t *testing.T) {
	date := time.Date(2024, 6, 1, 9, 17, 42, 123, time.UTC)

	got, err := CombineDateAndTime(date, "14:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC), got)

	got, err = CombineDateAndTime(date, "7:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 7, 5, 0, 0, time.UTC), got)
}

func TestCombineDateAndTimeKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	date := time.Date(2024, 12, 31, 23, 0, 0, 0, loc)

	got, err := CombineDateAndTime(date, "00:15")
	require.NoError(t, err)
	assert.Equal(t, 31, got.Day())
	assert.Equal(t, loc, got.Location())
}

func TestCombineDateAndTimeRejectsBadClock(t *testing.T) {
	for _, clock := range []string{"", "1430", "24:00", "12:60", "ab:cd", "12:5", "123:00"} {
		_, err := CombineDateAndTime(time.Now(), clock)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, clock)
	}
}

func TestValidateFuture(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateFuture(now.Add(time.Minute), now))
	assert.ErrorIs(t, ValidateFuture(now, now), ErrNotInFuture)
	assert.ErrorIs(t, ValidateFuture(now.Add(-time.Hour), now), ErrNotInFuture)
}
