package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"calsync/internal/database"
	"calsync/internal/export"
	"calsync/internal/models"
	"calsync/internal/schedule"
	"calsync/internal/service"
	"calsync/internal/timefmt"
)

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 50
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errBadInput = errors.New("bad input")

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	occurrences, err := s.svc.Events(r.Context(), rng)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrences)
}

func (s *HTTPServer) handleCreateMeetings(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.CreateMeetings(r.Context(), rng, parseOptions(r))
	s.writeResult(w, r, res, err)
}

func (s *HTTPServer) handleCreateProductive(w http.ResponseWriter, r *http.Request) {
	var inputs []models.ProductiveInput
	if err := decodeBody(w, r, &inputs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	requests, err := models.ResolveProductive(inputs, s.svc.Location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.CreateProductive(r.Context(), requests, parseOptions(r))
	s.writeResult(w, r, res, err)
}

func (s *HTTPServer) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var inputs []models.RecurringInput
	if err := decodeBody(w, r, &inputs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	templates, err := models.ResolveRecurring(inputs, s.svc.Location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.svc.CreateRecurring(r.Context(), templates, parseOptions(r))
	s.writeResult(w, r, res, err)
}

func (s *HTTPServer) handleTickets(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	days, err := s.svc.Tickets(r.Context(), rng)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticketsOnDays": days})
}

func (s *HTTPServer) handleCreateFromTickets(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	opts := parseOptions(r)
	res, err := s.svc.CreateFromTickets(r.Context(), rng, opts)
	if err != nil {
		if res != nil && isAborted(err) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "result": res})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	if opts.DryRun && wantsXLSX(r) {
		drafts := append(append([]models.TimeEntryDraft{}, res.Meetings.Drafts...), res.Productive.Drafts...)
		s.writeXLSX(w, drafts, "tickets")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *HTTPServer) writeResult(w http.ResponseWriter, r *http.Request, res *service.Result, err error) {
	if err != nil {
		if res != nil && isAborted(err) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "result": res})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	if res.DryRun && wantsXLSX(r) {
		s.writeXLSX(w, res.Drafts, "entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) writeXLSX(w http.ResponseWriter, drafts []models.TimeEntryDraft, name string) {
	var buf bytes.Buffer
	if err := export.WriteDrafts(&buf, drafts, s.svc.Location()); err != nil {
		s.logger.Error().Err(err).Msg("xlsx export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// writeServiceError maps domain errors onto status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadInput),
		errors.Is(err, timefmt.ErrFormat),
		errors.Is(err, schedule.ErrInvalidTemplate),
		errors.Is(err, schedule.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrTicketsDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, service.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// parseRange reads start and end query parameters in the service zone.
// With neither given the range is the current month; a lone start is a
// single day.
func (s *HTTPServer) parseRange(r *http.Request) (models.Range, error) {
	loc := s.svc.Location()
	q := r.URL.Query()
	rawStart := strings.TrimSpace(q.Get("start"))
	rawEnd := strings.TrimSpace(q.Get("end"))

	if rawStart == "" && rawEnd == "" {
		return models.CurrentMonth(s.now().In(loc)), nil
	}
	if rawStart == "" {
		return models.Range{}, fmt.Errorf("%w: end given without start", service.ErrInvalidRange)
	}

	start, err := timefmt.ParseDate(rawStart, loc)
	if err != nil {
		return models.Range{}, fmt.Errorf("start: %w", err)
	}
	end := start
	if rawEnd != "" {
		if end, err = timefmt.ParseDate(rawEnd, loc); err != nil {
			return models.Range{}, fmt.Errorf("end: %w", err)
		}
	}
	return models.Range{Start: start, End: end}, nil
}

func parseOptions(r *http.Request) service.Options {
	dry, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	return service.Options{DryRun: dry}
}

func wantsXLSX(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "xlsx")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadInput, err)
	}
	return nil
}

func isAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

