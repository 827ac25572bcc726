package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteReportFile stores the rendered report under outputDir, named by
// the week it covers, and returns the full path.
func WriteReportFile(content, outputDir string, weekStart time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("berichtsheft_%s.md", weekStart.Format("2006-01-02")))
	return path, os.WriteFile(path, []byte(content), 0644)
}
