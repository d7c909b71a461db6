package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const sessionRoot = "sessions"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSessionPath places a finished session under its UTC date partition:
// sessions/date=2026-02-19/session-<id>.parquet
func BuildSessionPath(sessionID string, finishedAt time.Time) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	return path.Join(SessionDatePrefix(finishedAt), fmt.Sprintf("session-%s.parquet", sessionID)), nil
}

func SessionDatePrefix(day time.Time) string {
	ts := day.UTC()
	return path.Join(sessionRoot, fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day())) + "/"
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
