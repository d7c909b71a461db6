package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/sqlagent/internal/executor"
)

type Node string

const (
	NodeCheckRelevance   Node = "check_relevance"
	NodeConvertToSQL     Node = "convert_to_sql"
	NodeExecuteSQL       Node = "execute_sql"
	NodeRegenerateQuery  Node = "regenerate_query"
	NodeHumanAnswer      Node = "generate_human_readable_answer"
	NodeFunnyResponse    Node = "generate_funny_response"
	NodeEndMaxIterations Node = "end_max_iterations"
)

const StartNode = NodeCheckRelevance

// DefaultMaxAttempts is the retry bound of a run: after three regenerations
// the run ends at end_max_iterations. Config.MaxAttempts can change it, but
// any value other than 3 departs from the documented pipeline behavior.
const DefaultMaxAttempts = 3

const MaxIterationsMessage = "Tried too many times. Please rephrase your question."

const (
	OutcomeAnswered      = "answered"
	OutcomeNotRelevant   = "not_relevant"
	OutcomeMaxIterations = "max_iterations"
	OutcomeError         = "error"
)

func (n Node) Terminal() bool {
	switch n {
	case NodeHumanAnswer, NodeFunnyResponse, NodeEndMaxIterations:
		return true
	default:
		return false
	}
}

// State is owned by a single run.
type State struct {
	SessionID string
	// InitialQuestion is the question as asked; Question may be rewritten.
	InitialQuestion string
	Question        string
	SQLQuery        string
	QueryResult     string
	QueryColumns    []string
	QueryRows       []executor.Row
	Attempts        int
	Relevance       string
	SQLError        bool

	Visited []Node
	// Failed is set when a node returned an error; the last visited node
	// did not finish.
	Failed     bool
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewState(question string) State {
	return State{
		SessionID:       uuid.NewString(),
		InitialQuestion: question,
		Question:        question,
		StartedAt:       time.Now().UTC(),
	}
}

// Outcome names how the run ended, judged by the last node it ran.
func (s State) Outcome() string {
	if s.Failed {
		return OutcomeError
	}
	if len(s.Visited) == 0 {
		return ""
	}
	switch s.Visited[len(s.Visited)-1] {
	case NodeHumanAnswer:
		return OutcomeAnswered
	case NodeFunnyResponse:
		return OutcomeNotRelevant
	case NodeEndMaxIterations:
		return OutcomeMaxIterations
	default:
		return OutcomeError
	}
}
