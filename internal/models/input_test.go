package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"calsync/internal/timefmt"
)

func TestProductiveInputResolve(t *testing.T) {
	cet := time.FixedZone("CET", 3600)

	var inputs []ProductiveInput
	require.NoError(t, json.Unmarshal([]byte(`[
		{"description": "Feature", "start": "2024-03-04", "end": "2024-03-08", "taskName": "Development"},
		{"description": "Fix", "start": "20240311"}
	]`), &inputs))

	reqs, err := ResolveProductive(inputs, cet)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, cet), reqs[0].Start)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, cet), reqs[0].End)
	assert.Equal(t, "Development", reqs[0].TaskName)
	assert.Equal(t, reqs[1].Start, reqs[1].End)

	_, err = ResolveProductive([]ProductiveInput{{Start: "04/03/2024"}}, cet)
	assert.ErrorIs(t, err, timefmt.ErrFormat)
}

func TestRecurringInputResolve(t *testing.T) {
	var inputs []RecurringInput
	require.NoError(t, yaml.Unmarshal([]byte(`
- description: Planning
  start_date: "2024-03-04"
  end_date: "2024-03-29"
  days_of_week: [monday, thu]
  start_time: "10:00"
  end_time: "11:00"
  interval: 7
- description: Retro
  start_date: "2024-03-01"
  end_date: "2024-03-01"
  days_of_week: [friday]
  start_time: "15:00"
  end_time: "16:00"
`), &inputs))

	tmpls, err := ResolveRecurring(inputs, time.UTC)
	require.NoError(t, err)
	require.Len(t, tmpls, 2)
	assert.Equal(t, Weekdays{time.Monday, time.Thursday}, tmpls[0].DaysOfWeek)
	assert.Equal(t, 7, tmpls[0].IntervalDays)
	assert.Equal(t, 1, tmpls[1].IntervalDays)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), tmpls[0].EndDate)

	_, err = ResolveRecurring([]RecurringInput{{StartDate: "2024-03-01", EndDate: "soon"}}, time.UTC)
	assert.ErrorIs(t, err, timefmt.ErrFormat)
}
