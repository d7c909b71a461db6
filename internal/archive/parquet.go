package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/sqlagent/internal/agent"
	"github.com/duckmesh/sqlagent/internal/executor"
)

// Record is one archived run.
type Record struct {
	SessionID        string `parquet:"session_id" json:"session_id"`
	InitialQuestion  string `parquet:"initial_question" json:"initial_question"`
	FinalQuestion    string `parquet:"final_question" json:"final_question"`
	Relevance        string `parquet:"relevance" json:"relevance"`
	SQLQuery         string `parquet:"sql_query" json:"sql_query"`
	Answer           string `parquet:"answer" json:"answer"`
	Outcome          string `parquet:"outcome" json:"outcome"`
	Attempts         int64  `parquet:"attempts" json:"attempts"`
	SQLError         bool   `parquet:"sql_error" json:"sql_error"`
	Visited          string `parquet:"visited" json:"visited"`
	ColumnsJSON      string `parquet:"columns_json" json:"columns_json"`
	RowsJSON         string `parquet:"rows_json" json:"rows_json"`
	StartedAtUnixMs  int64  `parquet:"started_at_unix_ms" json:"started_at_unix_ms"`
	FinishedAtUnixMs int64  `parquet:"finished_at_unix_ms" json:"finished_at_unix_ms"`
}

func NewRecord(state agent.State) (Record, error) {
	columns, err := json.Marshal(state.QueryColumns)
	if err != nil {
		return Record{}, fmt.Errorf("marshal columns: %w", err)
	}
	rows, err := json.Marshal(executor.JSONRows(state.QueryRows))
	if err != nil {
		return Record{}, fmt.Errorf("marshal rows: %w", err)
	}
	visited := make([]string, 0, len(state.Visited))
	for _, node := range state.Visited {
		visited = append(visited, string(node))
	}
	return Record{
		SessionID:        state.SessionID,
		InitialQuestion:  state.InitialQuestion,
		FinalQuestion:    state.Question,
		Relevance:        state.Relevance,
		SQLQuery:         state.SQLQuery,
		Answer:           state.QueryResult,
		Outcome:          state.Outcome(),
		Attempts:         int64(state.Attempts),
		SQLError:         state.SQLError,
		Visited:          strings.Join(visited, ","),
		ColumnsJSON:      string(columns),
		RowsJSON:         string(rows),
		StartedAtUnixMs:  state.StartedAt.UnixMilli(),
		FinishedAtUnixMs: state.FinishedAt.UnixMilli(),
	}, nil
}

func EncodeRecords(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Record](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeRecords(data []byte) ([]Record, error) {
	reader := parquet.NewGenericReader[Record](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	records := make([]Record, reader.NumRows())
	if len(records) == 0 {
		return nil, nil
	}
	count, err := reader.Read(records)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return records[:count], nil
}
