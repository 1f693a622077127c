package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWildcard(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)
	assert.True(t, s.minute.any)
	assert.True(t, s.dayOfWeek.any)
}

func TestParseNamedMonthAndDowCaseInsensitive(t *testing.T) {
	s, err := Parse("0 9 * jan mon")
	require.NoError(t, err)
	assert.True(t, s.month.matches(1))
	assert.False(t, s.month.matches(2))
	assert.True(t, s.dayOfWeek.matches(1))

	s2, err := Parse("0 9 * JAN MON")
	require.NoError(t, err)
	assert.True(t, s2.month.matches(1))
}

func TestParseListAndRangeAndStep(t *testing.T) {
	s, err := Parse("0,15,30,45 */4 1-5 * *")
	require.NoError(t, err)
	assert.True(t, s.minute.matches(15))
	assert.False(t, s.minute.matches(20))
	assert.True(t, s.hour.matches(0))
	assert.True(t, s.hour.matches(4))
	assert.False(t, s.hour.matches(1))
	assert.True(t, s.dayOfMonth.matches(3))
	assert.False(t, s.dayOfMonth.matches(6))
}

func TestParseRejectsHugeRange(t *testing.T) {
	_, err := Parse("0-99999 * * * *")
	assert.Error(t, err)
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("* * * *")
	assert.Error(t, err)
}

func TestNextRunStepped(t *testing.T) {
	s, err := Parse("*/15 * * * *")
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 3, 0, 0, time.UTC)
	next := NextRun(s, now, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 15, 0, 0, time.UTC), next)
}

func TestNextRunFallsBackWhenUnsatisfiable(t *testing.T) {
	s, err := Parse("0 0 30 2 *")
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	next := NextRun(s, now, time.UTC)
	assert.True(t, next.After(now))
	assert.True(t, next.Before(now.Add(2*time.Hour)))
}
