package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/askdb/internal/chart"
	"github.com/rendis/askdb/internal/executor"
	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/internal/guard"
	"github.com/rendis/askdb/internal/llm"
	"github.com/rendis/askdb/internal/logging"
	"github.com/rendis/askdb/internal/metadata"
	"github.com/rendis/askdb/internal/summary"
	"github.com/rendis/askdb/pkg/schema"
)

// DefaultFollowupCount is how many follow-up questions the suggestion
// branch asks for when not configured.
const DefaultFollowupCount = 3

// Capabilities are the injected external dependencies of a run. All of
// them must be safe for concurrent use: branches within a run, and
// concurrent runs, call them simultaneously.
type Capabilities struct {
	Metadata metadata.Provider
	LLM      llm.Client
	Executor executor.QueryExecutor
}

// Options tune orchestrator behavior.
type Options struct {
	// MaxRows caps result size; queries are rewritten to respect it.
	MaxRows int
	// Namespace qualifies bare table references in generated SQL.
	Namespace string
	// FollowupCount is how many suggestions to request.
	FollowupCount int
	// NodeTimeout bounds each node execution; zero means no bound
	// beyond the capability's own timeouts.
	NodeTimeout time.Duration
	// Guard overrides the default rewrite/check guard.
	Guard *guard.Guard
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator compiles the workflow topology once and runs requests
// through it. It is immutable after construction and safe for
// concurrent use.
type Orchestrator struct {
	nodes       map[NodeID]Node
	nodeTimeout time.Duration
	logger      *slog.Logger
}

// New builds the node set from the given capabilities, compiles the
// topology, and returns a ready orchestrator. A topology fault is a
// programmer error and fails construction.
func New(caps Capabilities, opts Options) (*Orchestrator, error) {
	if caps.Metadata == nil {
		return nil, schema.NewError(schema.ErrCodeGraphConfig, "metadata provider is required")
	}
	if caps.LLM == nil {
		return nil, schema.NewError(schema.ErrCodeGraphConfig, "llm client is required")
	}
	if caps.Executor == nil {
		return nil, schema.NewError(schema.ErrCodeGraphConfig, "query executor is required")
	}

	if opts.FollowupCount <= 0 {
		opts.FollowupCount = DefaultFollowupCount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := opts.Guard
	if g == nil {
		cel, err := expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
		guardOpts := []guard.Option{guard.WithNamespace(opts.Namespace)}
		if opts.MaxRows > 0 {
			guardOpts = append(guardOpts, guard.WithMaxRows(opts.MaxRows))
		}
		g = guard.New(cel, expressions.NewExprEngine(), guardOpts...)
	}

	nodes := map[NodeID]Node{
		NodeLoadMetadata: &loadMetadataNode{provider: caps.Metadata},
		NodeGenerateSQL:  &generateSQLNode{client: caps.LLM},
		NodeValidateSQL:  &validateSQLNode{client: caps.LLM, guard: g},
		NodeExecute:      &executeNode{exec: caps.Executor, maxRows: g.MaxRows()},
		NodeSummarize:    &summarizeNode{client: caps.LLM, profiler: summary.NewProfiler(expressions.NewExprEngine())},
		NodeChart:        &chartNode{builder: chart.NewBuilder(expressions.NewGoJQEngine())},
		NodeFollowups:    &followupsNode{client: caps.LLM, count: opts.FollowupCount},
		NodeUnanswerable: &unanswerableNode{},
	}

	if err := compileGraph(nodes); err != nil {
		return nil, err
	}

	return &Orchestrator{
		nodes:       nodes,
		nodeTimeout: opts.NodeTimeout,
		logger:      opts.Logger,
	}, nil
}

// branchOutcome reports one branch-terminal result back to the join
// point. Soft outcomes become recorded soft failures; the first
// non-soft outcome becomes the run's error.
type branchOutcome struct {
	node NodeID
	err  error
	soft bool
}

// Run executes one request through the workflow and always returns a
// well-formed Response.
func (o *Orchestrator) Run(ctx context.Context, req schema.Request) *schema.Response {
	if err := req.Normalize(); err != nil {
		return &schema.Response{
			Success:           false,
			Data:              []schema.Row{},
			FollowupQuestions: []string{},
			Error:             asQueryError(err, schema.ErrCodeValidation),
		}
	}

	st := newState(req)
	ctx = logging.WithRunID(ctx, st.RunID)
	o.logger.InfoContext(ctx, "run started", slog.String("input", truncate(st.InputText, 200)))

	// LoadMetadata is the sole root: every branch depends on it, so a
	// failure here aborts the run before any branch starts.
	if err := o.runNode(ctx, NodeLoadMetadata, st); err != nil {
		st.Err = asQueryError(err, schema.ErrCodeMetadataLoad).WithNode(NodeLoadMetadata.String())
		o.logger.ErrorContext(ctx, "run aborted", slog.String("error", st.Err.Error()))
		return assemble(st)
	}

	// Top-level fan-out: the SQL pipeline and the followups branch run
	// concurrently and write disjoint state fields. Outcomes are
	// collected at the join and folded into the state by this
	// goroutine alone.
	outcomes := make(chan branchOutcome, 8)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		o.runSQLBranch(ctx, st, outcomes)
	}()
	go func() {
		defer wg.Done()
		if err := o.runNode(ctx, NodeFollowups, st); err != nil {
			outcomes <- branchOutcome{node: NodeFollowups, err: err, soft: true}
		}
	}()

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		if outcome.soft {
			st.SoftFailures = append(st.SoftFailures, fmt.Sprintf("%s: %s", outcome.node, outcome.err.Error()))
			o.logger.WarnContext(ctx, "branch soft failure",
				slog.String("node", outcome.node.String()),
				slog.String("error", outcome.err.Error()),
			)
			continue
		}
		if st.Err == nil {
			st.Err = asQueryError(outcome.err, schema.ErrCodeInternal).WithNode(outcome.node.String())
		}
	}

	resp := assemble(st)
	o.logger.InfoContext(ctx, "run finished",
		slog.Bool("success", resp.Success),
		slog.Int("rows", len(resp.Data)),
		slog.Int("retries", st.RetryCount),
	)
	return resp
}

// runSQLBranch drives generation, validation, the bounded retry loop,
// execution, and the post-execution fan-out. The loop-back edge is an
// explicit iteration: RetryCount increments exactly once per Invalid
// verdict and the router stops retrying at the bound, so termination
// is guaranteed.
func (o *Orchestrator) runSQLBranch(ctx context.Context, st *State, outcomes chan<- branchOutcome) {
	for {
		if err := o.runNode(ctx, NodeGenerateSQL, st); err != nil {
			outcomes <- branchOutcome{node: NodeGenerateSQL, err: err}
			return
		}
		if err := o.runNode(ctx, NodeValidateSQL, st); err != nil {
			outcomes <- branchOutcome{node: NodeValidateSQL, err: err}
			return
		}

		if st.Validation.Verdict == schema.VerdictInvalid {
			st.RetryCount++
		}

		next, err := route(st)
		if err != nil {
			outcomes <- branchOutcome{node: NodeValidateSQL, err: err}
			return
		}

		o.logger.DebugContext(ctx, "routed",
			slog.String("verdict", string(st.Validation.Verdict)),
			slog.String("decision", next.String()),
			slog.Int("retry_count", st.RetryCount),
		)

		switch next {
		case decisionRetry:
			continue
		case decisionUnanswerable:
			// Business terminal: execution and its fan-out never run.
			_ = o.runNode(ctx, NodeUnanswerable, st)
			return
		case decisionExecute:
		}
		break
	}

	if err := o.runNode(ctx, NodeExecute, st); err != nil {
		// Execution failure keeps the query visible and skips the
		// post-processing fan-out; the run reports success=false.
		outcomes <- branchOutcome{node: NodeExecute, err: err}
		return
	}

	// Post-execution fan-out: summarization and charting write
	// disjoint fields, so the join is pure collection.
	var wg sync.WaitGroup
	for _, id := range []NodeID{NodeSummarize, NodeChart} {
		wg.Add(1)
		go func(id NodeID) {
			defer wg.Done()
			if err := o.runNode(ctx, id, st); err != nil {
				outcomes <- branchOutcome{node: id, err: err, soft: true}
			}
		}(id)
	}
	wg.Wait()
}

// runNode executes one node with correlation logging and the optional
// per-node timeout.
func (o *Orchestrator) runNode(ctx context.Context, id NodeID, st *State) error {
	ctx = logging.WithNode(ctx, id.String())
	if o.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.nodeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := o.nodes[id].Run(ctx, st)
	elapsed := time.Since(start)

	if err != nil {
		o.logger.ErrorContext(ctx, "node failed",
			slog.String("node", id.String()),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return err
	}
	o.logger.DebugContext(ctx, "node completed",
		slog.String("node", id.String()),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// assemble merges the joined branch outputs into the caller-facing
// Response. Branches made unreachable by routing contribute their
// empty values.
func assemble(st *State) *schema.Response {
	data := st.Rows
	if data == nil {
		data = []schema.Row{}
	}
	followups := st.Followups
	if followups == nil {
		followups = []string{}
	}
	return &schema.Response{
		Success:           st.Err == nil,
		SQLQuery:          st.SQLQuery,
		Data:              data,
		Summary:           st.Summary,
		FollowupQuestions: followups,
		Chart:             st.Chart,
		Error:             st.Err,
	}
}
