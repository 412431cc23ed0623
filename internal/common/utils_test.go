package common

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UsesKSTCalendar(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"utc afternoon is next KST day", time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC), Date(2025, 7, 2)},
		{"utc just before KST midnight", time.Date(2025, 7, 1, 14, 59, 59, 0, time.UTC), Date(2025, 7, 1)},
		{"kst midnight", time.Date(2025, 7, 2, 0, 0, 0, 0, KST), Date(2025, 7, 2)},
		{"kst last second", time.Date(2025, 7, 2, 23, 59, 59, 0, KST), Date(2025, 7, 2)},
		{"year boundary", time.Date(2024, 12, 31, 16, 0, 0, 0, time.UTC), Date(2025, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DateOf(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestToday(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 2, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, Date(2025, 7, 3), Today(clock))
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		from, to time.Time
		want     int
	}{
		{Date(2025, 7, 2), Date(2025, 7, 2), 0},
		{Date(2025, 7, 2), Date(2025, 7, 5), 3},
		{Date(2025, 7, 2), Date(2025, 7, 12), 10},
		{Date(2025, 7, 5), Date(2025, 7, 2), -3},
		{Date(2025, 2, 27), Date(2025, 3, 1), 2},
		{Date(2024, 12, 30), Date(2025, 1, 2), 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysBetween(tt.from, tt.to), "%s -> %s", FormatYMD(tt.from), FormatYMD(tt.to))
	}
}

func TestParseYMD(t *testing.T) {
	got, err := ParseYMD("20250702")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, 7, 2), got)
	assert.Equal(t, "20250702", FormatYMD(got))

	for _, in := range []string{"", "2025072", "202507021", "2025-07-02", "20251302", "abcdefgh"} {
		_, err := ParseYMD(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseISODate(t *testing.T) {
	got, err := ParseISODate("2025-07-02")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, 7, 2), got)

	for _, in := range []string{"20250702", "2025-7-2", "2025-07-32", ""} {
		_, err := ParseISODate(in)
		assert.Error(t, err, "input %q", in)
	}
}
