package storage

import (
	"testing"
	"time"
)

func TestBuildSessionPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildSessionPath("3f1c2a9e-0b7d-4c55-9e61-2d4b8f0a7c11", ts)
	if err != nil {
		t.Fatalf("BuildSessionPath() error = %v", err)
	}
	want := "sessions/date=2026-02-20/session-3f1c2a9e-0b7d-4c55-9e61-2d4b8f0a7c11.parquet"
	if key != want {
		t.Fatalf("BuildSessionPath() = %q, want %q", key, want)
	}
}

func TestSessionDatePrefix(t *testing.T) {
	got := SessionDatePrefix(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	if got != "sessions/date=2026-03-01/" {
		t.Fatalf("SessionDatePrefix() = %q", got)
	}
}

func TestBuildSessionPathRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"", "../oops", "a/b"} {
		if _, err := BuildSessionPath(id, time.Now()); err == nil {
			t.Fatalf("BuildSessionPath(%q) expected error", id)
		}
	}
}
