package models

import (
	"fmt"
	"time"

	"calsync/internal/timefmt"
)

// ProductiveInput is the request body form of a ProductiveRequest; dates
// are strings such as "2024-03-04" or "20240304".
type ProductiveInput struct {
	Description string `json:"description" yaml:"description"`
	Start       string `json:"start" yaml:"start"`
	End         string `json:"end" yaml:"end"`
	TaskName    string `json:"taskName" yaml:"task_name"`
}

// Resolve parses the dates in loc. An empty End means a single day.
func (in ProductiveInput) Resolve(loc *time.Location) (ProductiveRequest, error) {
	start, err := timefmt.ParseDate(in.Start, loc)
	if err != nil {
		return ProductiveRequest{}, fmt.Errorf("start: %w", err)
	}
	req := ProductiveRequest{Description: in.Description, Start: start, End: start, TaskName: in.TaskName}
	if in.End != "" {
		if req.End, err = timefmt.ParseDate(in.End, loc); err != nil {
			return ProductiveRequest{}, fmt.Errorf("end: %w", err)
		}
	}
	return req, nil
}

// RecurringInput is the request body form of a RecurringTemplate.
type RecurringInput struct {
	Description  string   `json:"description" yaml:"description"`
	StartDate    string   `json:"startDate" yaml:"start_date"`
	EndDate      string   `json:"endDate" yaml:"end_date"`
	DaysOfWeek   Weekdays `json:"daysOfWeek" yaml:"days_of_week"`
	StartTime    string   `json:"startTime" yaml:"start_time"`
	EndTime      string   `json:"endTime" yaml:"end_time"`
	IntervalDays int      `json:"interval" yaml:"interval"`
	TaskName     string   `json:"taskName" yaml:"task_name"`
}

func (in RecurringInput) Resolve(loc *time.Location) (RecurringTemplate, error) {
	start, err := timefmt.ParseDate(in.StartDate, loc)
	if err != nil {
		return RecurringTemplate{}, fmt.Errorf("startDate: %w", err)
	}
	end, err := timefmt.ParseDate(in.EndDate, loc)
	if err != nil {
		return RecurringTemplate{}, fmt.Errorf("endDate: %w", err)
	}
	interval := in.IntervalDays
	if interval == 0 {
		interval = 1
	}
	return RecurringTemplate{
		Description:  in.Description,
		StartDate:    start,
		EndDate:      end,
		DaysOfWeek:   in.DaysOfWeek,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		IntervalDays: interval,
		TaskName:     in.TaskName,
	}, nil
}

// ResolveProductive resolves every input, naming the failing index.
func ResolveProductive(inputs []ProductiveInput, loc *time.Location) ([]ProductiveRequest, error) {
	out := make([]ProductiveRequest, 0, len(inputs))
	for i, in := range inputs {
		r, err := in.Resolve(loc)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func ResolveRecurring(inputs []RecurringInput, loc *time.Location) ([]RecurringTemplate, error) {
	out := make([]RecurringTemplate, 0, len(inputs))
	for i, in := range inputs {
		t, err := in.Resolve(loc)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
