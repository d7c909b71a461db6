package agent

import "strings"

// Next returns the node that follows node using the default attempt bound.
func Next(node Node, state State) Node {
	return NextWithLimit(node, state, DefaultMaxAttempts)
}

// NextWithLimit returns "" for terminal nodes.
func NextWithLimit(node Node, state State, maxAttempts int) Node {
	switch node {
	case NodeCheckRelevance:
		return relevanceRouter(state)
	case NodeConvertToSQL:
		return NodeExecuteSQL
	case NodeExecuteSQL:
		return executeSQLRouter(state)
	case NodeRegenerateQuery:
		return checkAttemptsRouter(state, maxAttempts)
	default:
		return ""
	}
}

func relevanceRouter(state State) Node {
	if strings.EqualFold(state.Relevance, "relevant") {
		return NodeConvertToSQL
	}
	return NodeFunnyResponse
}

func executeSQLRouter(state State) Node {
	if !state.SQLError {
		return NodeHumanAnswer
	}
	return NodeRegenerateQuery
}

func checkAttemptsRouter(state State, maxAttempts int) Node {
	if state.Attempts < maxAttempts {
		return NodeConvertToSQL
	}
	return NodeEndMaxIterations
}
