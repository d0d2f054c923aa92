package timefmt

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	amsterdam := time.FixedZone("CET", 3600)

	tests := []struct {
		name  string
		value string
		loc   *time.Location
		want  time.Time
	}{
		{
			name:  "utc suffix ignores hint",
			value: "20241104T081500Z",
			loc:   amsterdam,
			want:  time.Date(2024, 11, 4, 8, 15, 0, 0, time.UTC),
		},
		{
			name:  "local seconds",
			value: "20241104T081530",
			loc:   amsterdam,
			want:  time.Date(2024, 11, 4, 8, 15, 30, 0, amsterdam),
		},
		{
			name:  "date only",
			value: "20241104",
			loc:   nil,
			want:  time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "local minutes",
			value: "20241104T0915",
			loc:   amsterdam,
			want:  time.Date(2024, 11, 4, 9, 15, 0, 0, amsterdam),
		},
		{
			name:  "dashed minutes",
			value: "2024-11-04T09:15",
			loc:   amsterdam,
			want:  time.Date(2024, 11, 4, 9, 15, 0, 0, amsterdam),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.value, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseRejectsUnknownFormats(t *testing.T) {
	for _, value := range []string{"", "2024-11-04", "04/11/2024", "2024-11-04T09:15:00", "20241304"} {
		_, err := Parse(value, time.UTC)
		require.Error(t, err, value)

		var fe *FormatError
		assert.True(t, errors.As(err, &fe))
		assert.Equal(t, value, fe.Value)
		assert.ErrorIs(t, err, ErrFormat)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-11-04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2024-11-04T10:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 4, 10, 30, 0, 0, time.UTC), got)

	_, err = ParseDate("yesterday", time.UTC)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestToCanonical(t *testing.T) {
	amsterdam := time.FixedZone("CET", 3600)

	ts := time.Date(2024, 11, 4, 9, 15, 42, 987654321, amsterdam)
	assert.Equal(t, "2024-11-04T08:15:42Z", ToCanonical(ts))
}

func TestFromCanonical(t *testing.T) {
	got, err := FromCanonical("2024-11-04T08:15:42Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 4, 8, 15, 42, 0, time.UTC), got)

	_, err = FromCanonical("2024-11-04 08:15:42")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCanonicalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		ts := base.Add(time.Duration(rng.Int63n(int64(80 * 365 * 24 * time.Hour))))
		want := ts.Truncate(time.Second)

		got, err := FromCanonical(ToCanonical(ts))
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "round trip of %s gave %s", ts, got)

		norm, err := Normalize(ts)
		require.NoError(t, err)
		assert.Equal(t, got, norm)
	}
}
