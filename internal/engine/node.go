package engine

import "context"

// NodeID identifies a node in the workflow topology. The set is closed:
// routing switches over these values exhaustively instead of matching
// on strings.
type NodeID int

const (
	NodeLoadMetadata NodeID = iota
	NodeGenerateSQL
	NodeValidateSQL
	NodeExecute
	NodeSummarize
	NodeChart
	NodeFollowups
	NodeUnanswerable
)

var nodeNames = map[NodeID]string{
	NodeLoadMetadata: "load_metadata",
	NodeGenerateSQL:  "generate_sql",
	NodeValidateSQL:  "validate_sql",
	NodeExecute:      "execute",
	NodeSummarize:    "summarize",
	NodeChart:        "chart",
	NodeFollowups:    "followups",
	NodeUnanswerable: "handle_unanswerable",
}

func (id NodeID) String() string {
	if name, ok := nodeNames[id]; ok {
		return name
	}
	return "unknown"
}

// Node is a stateless unit that advances a State using injected
// capabilities. Nodes are built once at orchestrator construction and
// reused across all runs.
type Node interface {
	ID() NodeID
	Run(ctx context.Context, st *State) error
}
