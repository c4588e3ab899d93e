package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tokasu/internal/domain"
)

// Filename names a rendered report <date>_<category>_<id prefix>.<ext>.
func Filename(rec domain.IncidentRecord, ext string) string {
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", rec.Date.Format("20060102"), sanitizeFilename(rec.Category), id, ext)
}

// WriteReportFile stores a rendered report under outputDir.
func WriteReportFile(outputDir string, rec domain.IncidentRecord, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, Filename(rec, ext))
	return path, os.WriteFile(path, data, 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_", "・", "_")
	return replacer.Replace(s)
}
