package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProductiveRequest declares productive work for every workday in
// [Start, End]. Only the date component of Start and End is used.
type ProductiveRequest struct {
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TaskName    string    `json:"taskName"`
}

// RecurringTemplate describes a meeting that repeats on DaysOfWeek between
// StartDate and EndDate, every IntervalDays days once it matches.
type RecurringTemplate struct {
	Description  string    `json:"description"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	DaysOfWeek   Weekdays  `json:"daysOfWeek"`
	StartTime    string    `json:"startTime"`
	EndTime      string    `json:"endTime"`
	IntervalDays int       `json:"interval"`
	TaskName     string    `json:"taskName"`
}

// Weekdays is a weekday set that decodes from names ("Monday", "mon") or
// numbers (0 = Sunday).
type Weekdays []time.Weekday

// Has reports whether d is in the set.
func (w Weekdays) Has(d time.Weekday) bool {
	for _, x := range w {
		if x == d {
			return true
		}
	}
	return false
}

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Weekdays, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			s = string(r)
		}
		d, err := ParseWeekday(s)
		if err != nil {
			return err
		}
		out = append(out, d)
	}
	*w = out
	return nil
}

func (w *Weekdays) UnmarshalYAML(node *yaml.Node) error {
	var raw []string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	out := make(Weekdays, 0, len(raw))
	for _, s := range raw {
		d, err := ParseWeekday(s)
		if err != nil {
			return err
		}
		out = append(out, d)
	}
	*w = out
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts a full or three-letter English name, or 0-6.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday out of range: %d", n)
		}
		return time.Weekday(n), nil
	}
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	if len(s) == 3 {
		for name, d := range weekdayNames {
			if strings.HasPrefix(name, s) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
