package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"berichtsheft/internal/domain"
	"berichtsheft/internal/moodle"
	"berichtsheft/internal/storage/sqlite"
	"berichtsheft/internal/untis"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// authStatus maps the acquisition error taxonomy to HTTP codes:
// rejected password 401, nothing to try 404, everything failed 502.
func authStatus(err error) int {
	var credErr *untis.CredentialsError
	switch {
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.Is(err, untis.ErrResolutionEmpty):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

type candidateDTO struct {
	DisplayName string `json:"displayName"`
	TenantID    string `json:"tenantId"`
	Server      string `json:"server"`
	Address     string `json:"address,omitempty"`
}

func toCandidateDTOs(candidates []domain.TenantCandidate) []candidateDTO {
	out := make([]candidateDTO, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateDTO{
			DisplayName: c.DisplayName,
			TenantID:    c.TenantID,
			Server:      c.Server,
			Address:     c.Address,
		})
	}
	return out
}

func (s *Server) handleSearchSchool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Search   string `json:"search"`
		Locality string `json:"locality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Locality == "" {
		req.Locality = s.cfg.UntisLocality
	}

	candidates := s.untis.Resolve(r.Context(), req.Search, req.Locality, s.fallbackCandidates())
	writeJSON(w, http.StatusOK, map[string]any{"schools": toCandidateDTOs(candidates)})
}

type sessionDTO struct {
	Token    string `json:"token"`
	Server   string `json:"server"`
	TenantID string `json:"tenantId"`
}

type attemptDTO struct {
	TenantID string `json:"tenantId"`
	Server   string `json:"server"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

func toAttemptDTOs(trail []untis.AttemptFailure) []attemptDTO {
	out := make([]attemptDTO, 0, len(trail))
	for _, a := range trail {
		out = append(out, attemptDTO{
			TenantID: a.Candidate.TenantID,
			Server:   a.Candidate.Server,
			Kind:     string(a.Kind),
			Error:    a.Err.Error(),
		})
	}
	return out
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Search   string `json:"search"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	creds := domain.Credentials{
		Username:   req.Username,
		Secret:     req.Password,
		TenantHint: s.cfg.UntisSchoolHint,
		ServerHint: s.cfg.UntisServerHint,
	}
	if creds.Username == "" {
		creds.Username = s.cfg.UntisUsername
		creds.Secret = s.cfg.UntisPassword
	}
	search := req.Search
	if search == "" {
		search = s.cfg.UntisSearchTerm
	}

	candidates := s.untis.Resolve(r.Context(), search, s.cfg.UntisLocality, s.fallbackCandidates())
	session, trail, err := s.untis.Acquire(r.Context(), creds, candidates)
	if err != nil {
		CountUpstreamError("untis")
		writeJSON(w, authStatus(err), map[string]any{
			"error":    err.Error(),
			"attempts": toAttemptDTOs(trail),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sessionDTO{Token: session.Token, Server: session.Server, TenantID: session.TenantID},
		"attempts": toAttemptDTOs(trail),
	})
}

func decodeSession(r *http.Request, extra any) (*domain.SessionHandle, error) {
	var req sessionDTO
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if extra != nil {
		if err := json.Unmarshal(body, extra); err != nil {
			return nil, err
		}
	}
	if req.Token == "" || req.Server == "" {
		return nil, errors.New("token and server are required")
	}
	return &domain.SessionHandle{Token: req.Token, Server: req.Server, TenantID: req.TenantID}, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, err := decodeSession(r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.untis.Logout(r.Context(), session); err != nil {
		CountUpstreamError("untis")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type periodDTO struct {
	Name            string `json:"name"`
	Content         string `json:"content"`
	Timestamp       string `json:"timestamp"`
	MinutesDuration int    `json:"minutesDuration"`
	Weekday         string `json:"weekday"`
	StatusCode      string `json:"statusCode"`
}

func (s *Server) handleTimetableWeek(w http.ResponseWriter, r *http.Request) {
	var extra struct {
		WeekStart string `json:"weekStart"`
	}
	session, err := decodeSession(r, &extra)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	weekStart := domain.StartOfWeek(time.Now())
	if extra.WeekStart != "" {
		parsed, err := time.Parse("2006-01-02", extra.WeekStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weekStart must be formatted 2006-01-02")
			return
		}
		weekStart = domain.StartOfWeek(parsed)
	}

	schedule, err := s.untis.FetchWeek(r.Context(), session, weekStart)
	if err != nil {
		CountUpstreamError("untis")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	periods := make([]periodDTO, 0, len(schedule.Periods))
	for _, p := range schedule.Periods {
		info, err := untis.ToPeriodInfo(p)
		if err != nil {
			log.Printf("http timetable-week: dropping unmappable period: %v", err)
			schedule.Skipped++
			continue
		}
		periods = append(periods, periodDTO{
			Name:            info.Name,
			Content:         info.Content,
			Timestamp:       info.ISOTimestamp,
			MinutesDuration: info.MinutesDuration,
			Weekday:         info.Weekday,
			StatusCode:      p.StatusCode,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"weekStart": weekStart.Format("2006-01-02"),
		"periods":   periods,
		"skipped":   schedule.Skipped,
	})
}

type assignmentDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	DueDate    int64  `json:"dueDate"`
	CutoffDate int64  `json:"cutoffDate"`
	Course     string `json:"course"`
	Status     string `json:"status"`
}

func (s *Server) handleMoodleData(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.MoodleConfigured() {
		writeError(w, http.StatusNotImplemented, "Moodle is not configured")
		return
	}

	data, err := s.moodle.FetchAll(r.Context(), s.cfg.MoodleUsername, s.cfg.MoodlePassword)
	if err != nil {
		CountUpstreamError("moodle")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	now := time.Now()
	assignments := make([]assignmentDTO, 0, len(data.Assignments))
	for _, a := range data.Assignments {
		assignments = append(assignments, assignmentDTO{
			ID:         a.ID,
			Name:       a.Name,
			DueDate:    a.DueDate,
			CutoffDate: a.CutoffDate,
			Course:     moodle.CompactCourseName(a.Course),
			Status:     string(moodle.StatusOf(a, now)),
		})
	}

	courses := make([]string, 0, len(data.Courses))
	for _, c := range data.Courses {
		courses = append(courses, moodle.CompactCourseName(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"courses":     courses,
		"assignments": assignments,
		"errors":      data.Errors,
	})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WeekStart string `json:"weekStart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	weekStart := domain.StartOfWeek(time.Now())
	if req.WeekStart != "" {
		parsed, err := time.Parse("2006-01-02", req.WeekStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weekStart must be formatted 2006-01-02")
			return
		}
		weekStart = domain.StartOfWeek(parsed)
	}

	result, err := s.generate(r.Context(), weekStart)
	if err != nil {
		writeJSON(w, authStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	weeks, err := sqlite.ListReportWeeks(s.db, 52)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if weeks == nil {
		weeks = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"weeks": weeks})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	week := chi.URLParam(r, "week")
	report, err := sqlite.GetLatestReport(s.db, week)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "no report for week "+week)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"weekStart":       report.WeekStart,
		"content":         report.Content,
		"periodCount":     report.PeriodCount,
		"assignmentCount": report.AssignmentCount,
		"createdAt":       report.CreatedAt,
	})
}
