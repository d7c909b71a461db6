package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/duckmesh/sqlagent/internal/storage"
)

const sessionDateLayout = "2006-01-02"

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "session archive is not configured", false, nil)
		return
	}
	day, ok := sessionDay(w, r)
	if !ok {
		return
	}
	objects, err := deps.Sessions.List(r.Context(), day)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_LIST_FAILED", "failed to list archived sessions", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(objects))
	for _, object := range objects {
		items = append(items, map[string]any{
			"key":           object.Key,
			"size_bytes":    object.Size,
			"last_modified": object.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(sessionDateLayout), "sessions": items})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "session archive is not configured", false, nil)
		return
	}
	day, ok := sessionDay(w, r)
	if !ok {
		return
	}
	key, err := storage.BuildSessionPath(r.PathValue("id"), day)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION_ID", err.Error(), false, nil)
		return
	}
	records, err := deps.Sessions.Load(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_READ_FAILED", "failed to read archived session", true, map[string]any{"details": err.Error()})
		return
	}
	if len(records) == 0 {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session archive is empty", false, map[string]any{"key": key})
		return
	}
	writeJSON(w, http.StatusOK, records[0])
}

// sessionDay reads ?date=YYYY-MM-DD, defaulting to today in UTC.
func sessionDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now().UTC(), true
	}
	day, err := time.Parse(sessionDateLayout, raw)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", false, map[string]any{"date": raw})
		return time.Time{}, false
	}
	return day, true
}
