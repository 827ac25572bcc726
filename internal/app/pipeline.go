package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"berichtsheft/internal/config"
	"berichtsheft/internal/domain"
	"berichtsheft/internal/llm"
	"berichtsheft/internal/moodle"
	"berichtsheft/internal/report"
	"berichtsheft/internal/server"
	"berichtsheft/internal/storage/sqlite"
	"berichtsheft/internal/untis"
)

// Pipeline holds the wired clients for one run of the weekly report.
type Pipeline struct {
	cfg    config.Config
	db     *sql.DB
	untis  *untis.Client
	moodle *moodle.Client
	llm    *llm.Generator
}

func NewPipeline(cfg config.Config, db *sql.DB) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		db:    db,
		untis: untis.NewClient(),
		llm:   llm.NewGenerator(cfg),
	}
	if cfg.MoodleConfigured() {
		p.moodle = moodle.NewClient(cfg.MoodleBaseURL)
	}
	return p
}

func (p *Pipeline) Untis() *untis.Client   { return p.untis }
func (p *Pipeline) Moodle() *moodle.Client { return p.moodle }

// FetchMoodle is the reminder scheduler's data source.
func (p *Pipeline) FetchMoodle(ctx context.Context) (*domain.AssignmentData, error) {
	if p.moodle == nil {
		return nil, fmt.Errorf("Moodle is not configured")
	}
	return p.moodle.FetchAll(ctx, p.cfg.MoodleUsername, p.cfg.MoodlePassword)
}

// GenerateWeek runs the full pipeline for one week: resolve the school,
// acquire a session, fetch and normalize the timetable, pull the LMS
// assignments, optionally summarize via the AI provider, render, write
// and archive. Moodle and AI failures degrade the report; only the
// school-system side is fatal.
func (p *Pipeline) GenerateWeek(ctx context.Context, weekStart time.Time) (server.GenerateResult, error) {
	weekStart = domain.StartOfWeek(weekStart)

	creds := domain.Credentials{
		Username:   p.cfg.UntisUsername,
		Secret:     p.cfg.UntisPassword,
		TenantHint: p.cfg.UntisSchoolHint,
		ServerHint: p.cfg.UntisServerHint,
	}
	var fallback []domain.TenantCandidate
	for _, f := range p.cfg.UntisFallbackCandidates {
		fallback = append(fallback, domain.TenantCandidate{TenantID: f.TenantID, Server: f.Server})
	}

	candidates := p.untis.Resolve(ctx, p.cfg.UntisSearchTerm, p.cfg.UntisLocality, fallback)
	session, _, err := p.untis.Acquire(ctx, creds, candidates)
	if err != nil {
		return server.GenerateResult{}, fmt.Errorf("acquiring session: %w", err)
	}
	defer func() {
		if err := p.untis.Logout(context.WithoutCancel(ctx), session); err != nil {
			log.Printf("logout failed (session will expire remotely): %v", err)
		}
	}()

	schedule, err := p.untis.FetchWeek(ctx, session, weekStart)
	if err != nil {
		return server.GenerateResult{}, fmt.Errorf("fetching week %s: %w", weekStart.Format("2006-01-02"), err)
	}

	periods := make([]domain.PeriodInfo, 0, len(schedule.Periods))
	for _, period := range schedule.Periods {
		info, err := untis.ToPeriodInfo(period)
		if err != nil {
			log.Printf("dropping unmappable period: %v", err)
			schedule.Skipped++
			continue
		}
		periods = append(periods, info)
	}

	var assignments *domain.AssignmentData
	if p.moodle != nil {
		assignments, err = p.FetchMoodle(ctx)
		if err != nil {
			// The timetable half of the report is still worth having.
			log.Printf("moodle fetch failed, report continues without LMS data: %v", err)
			assignments = &domain.AssignmentData{Errors: []string{err.Error()}}
		}
	}

	aiSummary := ""
	if p.cfg.AIConfigured() && len(periods) > 0 {
		summary, err := p.llm.Summarize(ctx, describeWeek(periods))
		if err != nil {
			log.Printf("AI summary failed, report continues without it: %v", err)
		} else {
			aiSummary = summary
		}
	}

	now := time.Now()
	content := report.BuildWeekReport(report.WeekInput{
		WeekStart:   weekStart,
		Periods:     periods,
		Skipped:     schedule.Skipped,
		Assignments: assignments,
		AISummary:   aiSummary,
		Now:         now,
	})

	path, err := report.WriteReportFile(content, p.cfg.ReportOutputDir, weekStart)
	if err != nil {
		return server.GenerateResult{}, fmt.Errorf("writing report: %w", err)
	}

	archived := sqlite.ArchivedReport{
		WeekStart:   weekStart.Format("2006-01-02"),
		TenantID:    session.TenantID,
		Content:     content,
		PeriodCount: len(periods),
	}
	if assignments != nil {
		archived.AssignmentCount = len(assignments.Assignments)
	}
	if err := sqlite.InsertReport(p.db, archived); err != nil {
		log.Printf("archiving report failed: %v", err)
	}

	log.Printf("report generated week=%s periods=%d skipped=%d path=%s",
		archived.WeekStart, len(periods), schedule.Skipped, path)

	return server.GenerateResult{
		WeekStart: archived.WeekStart,
		Path:      path,
		Content:   content,
	}, nil
}

// describeWeek flattens the normalized periods into the free-text
// description the AI prompt substitutes.
func describeWeek(periods []domain.PeriodInfo) string {
	var b strings.Builder
	currentDay := ""
	for _, p := range periods {
		if p.Weekday != currentDay {
			currentDay = p.Weekday
			fmt.Fprintf(&b, "%s:\n", currentDay)
		}
		fmt.Fprintf(&b, "- %s", p.Name)
		if p.Content != "" && p.Content != p.Name {
			fmt.Fprintf(&b, " (%s)", p.Content)
		}
		b.WriteString("\n")
	}
	return b.String()
}
