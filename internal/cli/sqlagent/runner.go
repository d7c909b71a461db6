package sqlagent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/duckmesh/sqlagent/internal/config"
	"github.com/duckmesh/sqlagent/internal/llm"
	"github.com/duckmesh/sqlagent/internal/storage"
)

const serviceName = "sqlagent"

// ModelFactory builds the language model backend from configuration.
type ModelFactory func(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (llm.Model, error)

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Lookup replaces the process environment as the configuration source.
	Lookup config.LookupFunc
	// NewModel defaults to llm.New.
	NewModel ModelFactory
	// ObjectStore replaces the S3 store built from the archive settings.
	ObjectStore storage.ObjectStore
	// Interactive reports whether stdin is a terminal; the prompt is only
	// printed when it is.
	Interactive func() bool
}

// environment is what every subcommand shares.
type environment struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	lookup      config.LookupFunc
	newModel    ModelFactory
	objectStore storage.ObjectStore
	interactive func() bool

	configFile string
	dsn        string
}

func Run(ctx context.Context, args []string, opts Options) int {
	env := newEnvironment(opts)
	root := newRootCommand(env)
	root.SetArgs(args)
	root.SetIn(env.stdin)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(env.stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newEnvironment(opts Options) *environment {
	env := &environment{
		stdin:       opts.Stdin,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		lookup:      opts.Lookup,
		newModel:    opts.NewModel,
		objectStore: opts.ObjectStore,
		interactive: opts.Interactive,
	}
	if env.stdin == nil {
		env.stdin = strings.NewReader("")
	}
	if env.stdout == nil {
		env.stdout = io.Discard
	}
	if env.stderr == nil {
		env.stderr = io.Discard
	}
	if env.newModel == nil {
		env.newModel = llm.New
	}
	if env.interactive == nil {
		stdin := env.stdin
		env.interactive = func() bool {
			file, ok := stdin.(*os.File)
			return ok && term.IsTerminal(int(file.Fd()))
		}
	}
	return env
}

func newRootCommand(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlagent",
		Short: "Answer questions about a relational database in plain language",
		Long: `sqlagent translates questions into SQL, runs them against the configured
database and explains the result. Failed queries are regenerated a bounded
number of times. Without a subcommand it reads questions from stdin.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd.Context(), env)
		},
	}
	root.PersistentFlags().StringVar(&env.configFile, "config", "", "YAML config file (overrides SQLAGENT_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&env.dsn, "dsn", "", "store DSN (overrides SQLAGENT_STORE_DSN)")

	root.AddCommand(
		newREPLCommand(env),
		newAskCommand(env),
		newSchemaCommand(env),
		newBootstrapCommand(env),
		newServeCommand(env),
		newSessionsCommand(env),
		newRemoteCommand(env),
	)
	return root
}

func (e *environment) lookupValue(key string) string {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value)
}

// loadConfig resolves configuration from flags, then the environment (or the
// injected lookup), then the optional YAML file.
func (e *environment) loadConfig() (config.Config, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	path := strings.TrimSpace(e.configFile)
	if path == "" {
		if raw, ok := lookup("SQLAGENT_CONFIG_FILE"); ok {
			path = strings.TrimSpace(raw)
		}
	}
	if path != "" {
		fileLookup, err := config.FileLookup(path)
		if err != nil {
			return config.Config{}, err
		}
		lookup = config.ChainLookup(lookup, fileLookup)
	}
	if dsn := strings.TrimSpace(e.dsn); dsn != "" {
		lookup = config.ChainLookup(func(key string) (string, bool) {
			if key == "SQLAGENT_STORE_DSN" {
				return dsn, true
			}
			return "", false
		}, lookup)
	}
	return config.Load(serviceName, lookup)
}
