package sqlagent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duckmesh/sqlagent/internal/agent"
	"github.com/duckmesh/sqlagent/internal/bootstrap"
)

const (
	replPrompt      = "> "
	maxQuestionSize = 1 << 20
)

func newREPLCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read questions from stdin, one per line, and print each answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd.Context(), env)
		},
	}
}

func runREPL(ctx context.Context, env *environment) error {
	a, err := env.openApp(ctx, appOptions{autoBootstrap: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	runner, err := a.newAgent(ctx, env)
	if err != nil {
		return err
	}
	return answerLines(ctx, env, runner)
}

// answerLines runs one fresh session per non-blank input line. Run errors are
// reported and the loop keeps reading; only cancellation stops it.
func answerLines(ctx context.Context, env *environment, runner *agent.Agent) error {
	interactive := env.interactive()
	scanner := bufio.NewScanner(env.stdin)
	scanner.Buffer(make([]byte, 0, 64<<10), maxQuestionSize)

	for {
		if interactive {
			_, _ = fmt.Fprint(env.stdout, replPrompt)
		}
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		state, err := runner.Run(ctx, question)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			_, _ = fmt.Fprintf(env.stderr, "error: %v\n", err)
			continue
		}
		_, _ = fmt.Fprintln(env.stdout, state.QueryResult)
	}
	if interactive {
		_, _ = fmt.Fprintln(env.stdout)
	}
	return scanner.Err()
}

func newAskCommand(env *environment) *cobra.Command {
	var showSQL bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is required")
			}
			ctx := cmd.Context()
			a, err := env.openApp(ctx, appOptions{autoBootstrap: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			runner, err := a.newAgent(ctx, env)
			if err != nil {
				return err
			}
			state, err := runner.Run(ctx, question)
			if err != nil {
				return err
			}
			if showSQL && state.SQLQuery != "" {
				_, _ = fmt.Fprintf(env.stdout, "SQL: %s\n", state.SQLQuery)
				_, _ = fmt.Fprintf(env.stdout, "Attempts: %d\n", state.Attempts)
			}
			_, _ = fmt.Fprintln(env.stdout, state.QueryResult)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the last generated SQL and the regeneration count")
	return cmd
}

func newSchemaCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description handed to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := env.openApp(ctx, appOptions{autoBootstrap: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			text, err := a.describer.Describe(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(env.stdout, text)
			return nil
		},
	}
}

func newBootstrapCommand(env *environment) *cobra.Command {
	var (
		force bool
		dump  bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create and seed the sample e-commerce schema",
		Long: `bootstrap creates the sample e-commerce tables and seed rows in a SQLite
store. An existing database file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := env.openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			applied, err := a.bootstrap(ctx, force)
			if err != nil {
				return err
			}
			if applied {
				_, _ = fmt.Fprintln(env.stdout, "Database created and seeded.")
			} else {
				_, _ = fmt.Fprintln(env.stdout, "Database already exists, bootstrap skipped (use --force to recreate).")
			}
			if dump {
				return bootstrap.Dump(ctx, a.store.DB, a.introspector, env.stdout)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate the tables even if the database exists")
	cmd.Flags().BoolVar(&dump, "dump", false, "print every table's rows afterwards")
	return cmd
}
