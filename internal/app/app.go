package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/slack-go/slack"

	"berichtsheft/internal/config"
	"berichtsheft/internal/domain"
	"berichtsheft/internal/httpx"
	"berichtsheft/internal/nudge"
	"berichtsheft/internal/server"
	"berichtsheft/internal/storage/sqlite"
)

// Main is the real entry point. Subcommands:
//
//	generate [YYYY-MM-DD]  build the report for one week (default: current)
//	serve                  run the local API server (plus reminders if enabled)
func Main() {
	cfg := config.LoadConfig()
	httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	pipeline := NewPipeline(cfg, db)

	cmd := "generate"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "generate":
		weekStart := domain.StartOfWeek(time.Now())
		if len(os.Args) > 2 {
			parsed, err := time.Parse("2006-01-02", os.Args[2])
			if err != nil {
				log.Fatalf("Invalid week date '%s' (want YYYY-MM-DD): %v", os.Args[2], err)
			}
			weekStart = domain.StartOfWeek(parsed)
		}
		result, err := pipeline.GenerateWeek(context.Background(), weekStart)
		if err != nil {
			log.Fatalf("Report generation failed: %v", err)
		}
		fmt.Println(result.Content)
		log.Printf("Report written to %s", result.Path)

	case "serve":
		if cfg.RemindersOn {
			api := slack.New(cfg.SlackBotToken)
			nudge.StartReminderScheduler(cfg, db, api, pipeline.FetchMoodle)
		}

		srv := server.New(cfg, db, pipeline.Untis(), pipeline.Moodle(), pipeline.GenerateWeek)
		log.Printf("Listening on http://%s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
			log.Fatalf("Server error: %v", err)
		}

	default:
		log.Fatalf("Unknown command '%s' (want 'generate' or 'serve')", cmd)
	}
}
