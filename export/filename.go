package export

import (
	"strings"
	"time"
)

const filenameDateLayout = "2006-01-02"

// Filename builds the download name for an export: {base}_{YYYY-MM-DD}.pdf.
// The date is taken in UTC.
func Filename(base string, now time.Time) string {
	return base + "_" + now.UTC().Format(filenameDateLayout) + ".pdf"
}

// ArtifactKey derives a storage key for a delivered document.
func ArtifactKey(prefix, id, filename string) string {
	prefix = strings.Trim(prefix, "/")
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if id != "" {
		parts = append(parts, id)
	}
	parts = append(parts, filename)
	return strings.Join(parts, "/")
}
