package export

import (
	"testing"
	"time"
)

func TestFilename_UsesISODate(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if got := Filename("report", now); got != "report_2024-03-15.pdf" {
		t.Fatalf("expected report_2024-03-15.pdf, got %q", got)
	}
}

func TestFilename_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, 3, 16, 2, 0, 0, 0, loc)
	if got := Filename("report", now); got != "report_2024-03-15.pdf" {
		t.Fatalf("expected UTC date, got %q", got)
	}
}

func TestFilename_KeepsBaseVerbatim(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := Filename("acme corp/q1", now); got != "acme corp/q1_2024-03-15.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestArtifactKey(t *testing.T) {
	cases := []struct {
		prefix string
		id     string
		name   string
		want   string
	}{
		{"exports/", "abc", "report.pdf", "exports/abc/report.pdf"},
		{"", "abc", "report.pdf", "abc/report.pdf"},
		{"/exports", "", "report.pdf", "exports/report.pdf"},
	}
	for _, tc := range cases {
		if got := ArtifactKey(tc.prefix, tc.id, tc.name); got != tc.want {
			t.Fatalf("ArtifactKey(%q,%q,%q): expected %q, got %q", tc.prefix, tc.id, tc.name, tc.want, got)
		}
	}
}
