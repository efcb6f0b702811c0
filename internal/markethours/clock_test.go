package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockAt(t *testing.T, value string) *Clock {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	at, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)

	c, err := NewClockAt("America/New_York", func() time.Time { return at })
	require.NoError(t, err)
	return c
}

func TestIsOpenDuringRegularSession(t *testing.T) {
	// Wednesday 2026-08-26.
	assert.True(t, clockAt(t, "2026-08-26 09:30").IsOpen())
	assert.True(t, clockAt(t, "2026-08-26 12:00").IsOpen())
	assert.True(t, clockAt(t, "2026-08-26 15:59").IsOpen())
}

func TestIsClosedOutsideSession(t *testing.T) {
	assert.False(t, clockAt(t, "2026-08-26 09:29").IsOpen())
	assert.False(t, clockAt(t, "2026-08-26 16:00").IsOpen())
	assert.False(t, clockAt(t, "2026-08-26 20:00").IsOpen())
}

func TestIsClosedOnWeekends(t *testing.T) {
	// Saturday and Sunday.
	assert.False(t, clockAt(t, "2026-08-29 12:00").IsOpen())
	assert.False(t, clockAt(t, "2026-08-30 12:00").IsOpen())
}

func TestNextOpenSameDayBeforeBell(t *testing.T) {
	next := clockAt(t, "2026-08-26 08:00").NextOpen()
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, 26, next.Day())
}

func TestNextOpenAfterCloseRollsToNextDay(t *testing.T) {
	next := clockAt(t, "2026-08-26 17:00").NextOpen()
	assert.Equal(t, 27, next.Day())
	assert.Equal(t, 9, next.Hour())
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	// Friday 2026-08-28 evening rolls to Monday 2026-08-31.
	next := clockAt(t, "2026-08-28 18:00").NextOpen()
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 31, next.Day())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 30, next.Minute())
}
