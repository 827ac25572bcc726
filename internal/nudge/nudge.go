package nudge

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"

	"berichtsheft/internal/config"
	"berichtsheft/internal/domain"
	"berichtsheft/internal/moodle"
	"berichtsheft/internal/storage/sqlite"
)

// Messenger is the slice of the Slack API the reminders need.
// *slack.Client satisfies it.
type Messenger interface {
	OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// FetchFunc supplies the current assignment data for a reminder run.
type FetchFunc func(ctx context.Context) (*domain.AssignmentData, error)

// SelectUrgent picks the assignments worth a reminder: due within the
// soon-window or already overdue. Closed and undated ones never nag.
func SelectUrgent(assignments []domain.Assignment, now time.Time) []domain.Assignment {
	var urgent []domain.Assignment
	for _, a := range assignments {
		switch moodle.StatusOf(a, now) {
		case domain.StatusDueSoon, domain.StatusOverdue:
			urgent = append(urgent, a)
		}
	}
	sort.SliceStable(urgent, func(i, j int) bool {
		return urgent[i].DueDate < urgent[j].DueDate
	})
	return urgent
}

// ComposeMessage renders the DM text for a batch of urgent assignments.
func ComposeMessage(assignments []domain.Assignment, now time.Time) string {
	var b strings.Builder
	b.WriteString("📚 Hausaufgaben-Erinnerung:\n")
	for _, a := range assignments {
		label := "⏳ bald fällig"
		if moodle.StatusOf(a, now) == domain.StatusOverdue {
			label = "⚠️ überfällig"
		}
		due := ""
		if a.DueDate > 0 {
			due = fmt.Sprintf(" am %s", time.Unix(a.DueDate, 0).Format("02.01.2006 15:04"))
		}
		fmt.Fprintf(&b, "• %s – %s%s (%s)\n", moodle.CompactCourseName(a.Course), a.Name, due, label)
	}
	return b.String()
}

// Run performs one reminder pass: fetch, select, dedup against the
// notification table, DM. Errors on one user never block the others.
func Run(ctx context.Context, db *sql.DB, api Messenger, users []string, fetch FetchFunc) {
	data, err := fetch(ctx)
	if err != nil {
		log.Printf("reminder fetch failed: %v", err)
		return
	}

	now := time.Now()
	urgent := SelectUrgent(data.Assignments, now)
	if len(urgent) == 0 {
		log.Printf("reminder pass: nothing urgent (assignments=%d)", len(data.Assignments))
		return
	}

	for _, userID := range users {
		var fresh []domain.Assignment
		for _, a := range urgent {
			notified, err := sqlite.WasNotified(db, a.ID, userID)
			if err != nil {
				log.Printf("reminder dedup lookup failed for %s: %v", userID, err)
				continue
			}
			if !notified {
				fresh = append(fresh, a)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err != nil {
			log.Printf("reminder: opening DM with %s failed: %v", userID, err)
			continue
		}
		if _, _, err := api.PostMessage(channel.ID, slack.MsgOptionText(ComposeMessage(fresh, now), false)); err != nil {
			log.Printf("reminder: sending to %s failed: %v", userID, err)
			continue
		}

		for _, a := range fresh {
			if err := sqlite.MarkNotified(db, a.ID, userID); err != nil {
				log.Printf("reminder: marking %d for %s failed: %v", a.ID, userID, err)
			}
		}
		log.Printf("reminder sent to %s assignments=%d", userID, len(fresh))
	}
}

// StartReminderScheduler runs reminder passes on the configured 5-field
// cron expression (minute hour day-of-month month day-of-week).
func StartReminderScheduler(cfg config.Config, db *sql.DB, api Messenger, fetch FetchFunc) {
	if !cfg.RemindersOn {
		log.Println("Reminders disabled (reminders_enabled not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.ReminderCron)
	if err != nil {
		log.Printf("Invalid reminder_cron '%s': %v — reminders disabled", cfg.ReminderCron, err)
		return
	}

	log.Printf("Reminders scheduled (cron: %s) for %d users", cfg.ReminderCron, len(cfg.ReminderUsers))

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			log.Printf("Next reminder pass at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(now).Round(time.Minute))

			time.Sleep(next.Sub(now))
			Run(context.Background(), db, api, cfg.ReminderUsers, fetch)
		}
	}()
}
