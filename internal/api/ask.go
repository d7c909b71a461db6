package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/duckmesh/sqlagent/internal/agent"
	"github.com/duckmesh/sqlagent/internal/auth"
	"github.com/duckmesh/sqlagent/internal/executor"
	"github.com/duckmesh/sqlagent/internal/observability"
)

const maxAskBodyBytes = 64 << 10

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	SessionID     string         `json:"session_id"`
	Question      string         `json:"question"`
	FinalQuestion string         `json:"final_question"`
	Answer        string         `json:"answer"`
	Outcome       string         `json:"outcome"`
	Relevance     string         `json:"relevance"`
	SQL           string         `json:"sql,omitempty"`
	SQLError      bool           `json:"sql_error"`
	Attempts      int            `json:"attempts"`
	Columns       []string       `json:"columns,omitempty"`
	Rows          []executor.Row `json:"rows,omitempty"`
	Visited       []string       `json:"visited"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "agent is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	if deps.Logger != nil {
		attrs := observability.LogAttrs(r.Context())
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			attrs = append(attrs, slog.String("principal", identity.Principal))
		}
		deps.Logger.InfoContext(r.Context(), "ask received", attrs...)
	}

	state, err := deps.Agent.Run(r.Context(), question)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ASK_FAILED", "failed to answer question", true, map[string]any{
			"details":    err.Error(),
			"session_id": state.SessionID,
		})
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(state))
}

func newAskResponse(state agent.State) askResponse {
	visited := make([]string, 0, len(state.Visited))
	for _, node := range state.Visited {
		visited = append(visited, string(node))
	}
	return askResponse{
		SessionID:     state.SessionID,
		Question:      state.InitialQuestion,
		FinalQuestion: state.Question,
		Answer:        state.QueryResult,
		Outcome:       state.Outcome(),
		Relevance:     state.Relevance,
		SQL:           state.SQLQuery,
		SQLError:      state.SQLError,
		Attempts:      state.Attempts,
		Columns:       state.QueryColumns,
		Rows:          executor.JSONRows(state.QueryRows),
		Visited:       visited,
	}
}
