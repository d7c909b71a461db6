package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/duckmesh/sqlagent/internal/archive"
	"github.com/duckmesh/sqlagent/internal/executor"
	"github.com/duckmesh/sqlagent/internal/observability"
	"github.com/duckmesh/sqlagent/internal/query"
	"github.com/duckmesh/sqlagent/internal/query/duckdb"
	"github.com/duckmesh/sqlagent/internal/storage"
)

const dateLayout = "2006-01-02"

func newSessionsCommand(env *environment) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect archived sessions",
	}
	cmd.PersistentFlags().StringVar(&date, "date", "", "UTC day as YYYY-MM-DD (default today)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the sessions archived on one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			archiver, err := env.openSessionArchive(cmd.Context())
			if err != nil {
				return err
			}
			objects, err := archiver.List(cmd.Context(), day)
			if err != nil {
				return err
			}
			if len(objects) == 0 {
				_, _ = fmt.Fprintf(env.stdout, "No sessions archived on %s.\n", day.Format(dateLayout))
				return nil
			}
			w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tSIZE\tLAST MODIFIED")
			for _, object := range objects {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", object.Key, object.Size, object.LastModified.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			key, err := storage.BuildSessionPath(strings.TrimSpace(args[0]), day)
			if err != nil {
				return err
			}
			archiver, err := env.openSessionArchive(cmd.Context())
			if err != nil {
				return err
			}
			records, err := archiver.Load(cmd.Context(), key)
			if errors.Is(err, storage.ErrObjectNotFound) {
				return fmt.Errorf("session %s not found on %s", args[0], day.Format(dateLayout))
			}
			if err != nil {
				return err
			}
			for _, record := range records {
				printRecord(env, record)
			}
			return nil
		},
	})
	var rowLimit int
	queryCmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run read-only SQL over one day's sessions, exposed as the sessions view",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.querySessions(cmd.Context(), date, strings.Join(args, " "), rowLimit)
		},
	}
	queryCmd.Flags().IntVar(&rowLimit, "limit", 1000, "maximum rows to print (0 for no limit)")
	cmd.AddCommand(queryCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarize one day's sessions by outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.querySessions(cmd.Context(), date, query.SummarySQL, 0)
		},
	})
	return cmd
}

func (e *environment) querySessions(ctx context.Context, date, sqlText string, rowLimit int) error {
	day, err := parseDay(date)
	if err != nil {
		return err
	}
	archiver, err := e.openSessionArchive(ctx)
	if err != nil {
		return err
	}
	objects, err := archiver.List(ctx, day)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		_, _ = fmt.Fprintf(e.stdout, "No sessions archived on %s.\n", day.Format(dateLayout))
		return nil
	}
	result, err := duckdb.NewEngine(archiver.Store()).Execute(ctx, query.Request{
		SQL:      sqlText,
		RowLimit: rowLimit,
		Objects:  objects,
	})
	if err != nil {
		return err
	}
	printResult(e, result)
	return nil
}

func printResult(env *environment, result query.Result) {
	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.ToUpper(strings.Join(result.Columns, "\t")))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = executor.FormatValue(value)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(env.stderr, "%d rows from %d sessions (%d bytes) in %s\n",
		len(result.Rows), result.ScannedFiles, result.ScannedBytes, result.Duration.Round(time.Millisecond))
}

func (e *environment) openSessionArchive(ctx context.Context) (*archive.Archiver, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	archiver, err := e.openArchive(ctx, cfg, observability.NewLogger(cfg, e.stderr))
	if err != nil {
		return nil, err
	}
	if archiver == nil {
		return nil, errors.New("session archive is disabled (set SQLAGENT_ARCHIVE_ENABLED=true)")
	}
	return archiver, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", raw)
	}
	return day, nil
}

func printRecord(env *environment, record archive.Record) {
	started := time.UnixMilli(record.StartedAtUnixMs).UTC()
	finished := time.UnixMilli(record.FinishedAtUnixMs).UTC()
	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", record.SessionID)
	_, _ = fmt.Fprintf(w, "Question:\t%s\n", record.InitialQuestion)
	if record.FinalQuestion != record.InitialQuestion {
		_, _ = fmt.Fprintf(w, "Rewritten:\t%s\n", record.FinalQuestion)
	}
	_, _ = fmt.Fprintf(w, "Outcome:\t%s\n", record.Outcome)
	_, _ = fmt.Fprintf(w, "Relevance:\t%s\n", record.Relevance)
	if record.SQLQuery != "" {
		_, _ = fmt.Fprintf(w, "SQL:\t%s\n", record.SQLQuery)
	}
	_, _ = fmt.Fprintf(w, "Attempts:\t%d\n", record.Attempts)
	_, _ = fmt.Fprintf(w, "Path:\t%s\n", record.Visited)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", started.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", finished.Sub(started))
	_, _ = fmt.Fprintf(w, "Answer:\t%s\n", record.Answer)
	_ = w.Flush()
}
