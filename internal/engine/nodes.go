package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/askdb/internal/chart"
	"github.com/rendis/askdb/internal/executor"
	"github.com/rendis/askdb/internal/guard"
	"github.com/rendis/askdb/internal/llm"
	"github.com/rendis/askdb/internal/metadata"
	"github.com/rendis/askdb/internal/summary"
	"github.com/rendis/askdb/pkg/schema"
)

// unanswerablePrefix marks a generation response that declines the
// question instead of producing SQL.
const unanswerablePrefix = "UNANSWERABLE:"

const generateSystemPrompt = `You are an expert SQL analyst. Given a database schema and a question, write a single SQL SELECT statement that answers the question.
Rules:
- Return only the SQL statement, without explanations or markdown.
- Use only tables and columns that appear in the schema.
- If the question cannot be answered with this schema, reply with exactly: UNANSWERABLE: <short reason>`

const validateSystemPrompt = `You are a SQL reviewer. You are given a database schema and a SQL query.
Reply with exactly VALID if the query is syntactically correct and uses only tables and columns from the schema.
Otherwise reply with exactly INVALID: <short reason>.`

const summarizeSystemPrompt = `You are a data analyst. Write a short plain-language summary of the query results for a non-technical user.
Base the summary only on the provided data profile and sample rows. Do not invent numbers.`

const followupsSystemPrompt = `You are a data analyst. Given a database schema and a user question, suggest follow-up questions the user could ask next about this data.
Reply with one question per line, no numbering.`

// --- LoadMetadata ---

type loadMetadataNode struct {
	provider metadata.Provider
}

func (n *loadMetadataNode) ID() NodeID { return NodeLoadMetadata }

func (n *loadMetadataNode) Run(ctx context.Context, st *State) error {
	text, err := n.provider.Load(ctx)
	if err != nil {
		return asQueryError(err, schema.ErrCodeMetadataLoad)
	}
	st.Metadata = text
	return nil
}

// --- GenerateSQL ---

type generateSQLNode struct {
	client llm.Client
}

func (n *generateSQLNode) ID() NodeID { return NodeGenerateSQL }

func (n *generateSQLNode) Run(ctx context.Context, st *State) error {
	var user strings.Builder
	fmt.Fprintf(&user, "Schema:\n%s\n\nQuestion: %s", st.Metadata, st.InputText)
	if st.retryHint != "" {
		fmt.Fprintf(&user, "\n\nYour previous query was rejected: %s\nGenerate a corrected query.", st.retryHint)
	}

	text, err := n.client.Complete(ctx, llm.Request{
		System: generateSystemPrompt,
		User:   user.String(),
	})
	if err != nil {
		return asQueryError(err, schema.ErrCodeLLMClient)
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, unanswerablePrefix) {
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, unanswerablePrefix))
		if reason == "" {
			reason = "the question cannot be answered with the available data"
		}
		st.unanswerableReason = reason
		return nil
	}

	st.SQLQuery = trimmed
	return nil
}

// --- ValidateSQL ---

type validateSQLNode struct {
	client llm.Client
	guard  *guard.Guard
}

func (n *validateSQLNode) ID() NodeID { return NodeValidateSQL }

// Run produces the validation verdict. An unanswerable generation is
// turned into a verdict without any capability call; otherwise the
// query is deterministically rewritten (fences stripped, tables
// qualified, LIMIT enforced), checked against the static guard rules,
// and finally reviewed by the model.
func (n *validateSQLNode) Run(ctx context.Context, st *State) error {
	if st.unanswerableReason != "" {
		st.Validation = &schema.Validation{
			Verdict: schema.VerdictUnanswerable,
			Reason:  st.unanswerableReason,
		}
		return nil
	}

	st.SQLQuery = n.guard.Rewrite(st.SQLQuery)
	if st.SQLQuery == "" {
		st.Validation = &schema.Validation{
			Verdict: schema.VerdictInvalid,
			Reason:  "generation produced an empty query",
		}
		st.retryHint = st.Validation.Reason
		return nil
	}

	if err := n.guard.Check(ctx, st.SQLQuery); err != nil {
		var qerr *schema.QueryError
		reason := err.Error()
		if errors.As(err, &qerr) {
			reason = qerr.Message
		}
		st.Validation = &schema.Validation{Verdict: schema.VerdictInvalid, Reason: reason}
		st.retryHint = reason
		return nil
	}

	text, err := n.client.Complete(ctx, llm.Request{
		System: validateSystemPrompt,
		User:   fmt.Sprintf("Schema:\n%s\n\nSQL query:\n%s", st.Metadata, st.SQLQuery),
	})
	if err != nil {
		return asQueryError(err, schema.ErrCodeLLMClient)
	}

	verdict := strings.TrimSpace(text)
	upper := strings.ToUpper(verdict)
	switch {
	case strings.HasPrefix(upper, "VALID"):
		st.Validation = &schema.Validation{Verdict: schema.VerdictValid}
	case strings.HasPrefix(upper, "INVALID"):
		reason := strings.TrimSpace(strings.TrimPrefix(verdict[len("INVALID"):], ":"))
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		if reason == "" {
			reason = "the reviewer rejected the query"
		}
		st.Validation = &schema.Validation{Verdict: schema.VerdictInvalid, Reason: reason}
		st.retryHint = reason
	default:
		return schema.NewErrorf(schema.ErrCodeLLMClient, "reviewer returned an unrecognized verdict: %q", truncate(verdict, 120))
	}
	return nil
}

// --- Execute ---

type executeNode struct {
	exec    executor.QueryExecutor
	maxRows int
}

func (n *executeNode) ID() NodeID { return NodeExecute }

func (n *executeNode) Run(ctx context.Context, st *State) error {
	rows, err := n.exec.Run(ctx, st.SQLQuery, n.maxRows)
	if err != nil {
		return asQueryError(err, schema.ErrCodeSQLExecution)
	}
	if rows == nil {
		rows = []schema.Row{}
	}
	st.Rows = rows
	return nil
}

// --- Summarize ---

type summarizeNode struct {
	client   llm.Client
	profiler *summary.Profiler
}

func (n *summarizeNode) ID() NodeID { return NodeSummarize }

func (n *summarizeNode) Run(ctx context.Context, st *State) error {
	profile, err := n.profiler.Profile(ctx, st.Rows)
	if err != nil {
		return err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nSQL query:\n%s\n\nData profile:\n%s", st.InputText, st.SQLQuery, profile)
	if sample := sampleRows(st.Rows, 5); sample != "" {
		fmt.Fprintf(&user, "\n\nSample rows:\n%s", sample)
	}

	text, err := n.client.Complete(ctx, llm.Request{
		System: summarizeSystemPrompt,
		User:   user.String(),
	})
	if err != nil {
		return asQueryError(err, schema.ErrCodeLLMClient)
	}
	st.Summary = strings.TrimSpace(text)
	return nil
}

// --- Chart ---

type chartNode struct {
	builder *chart.Builder
}

func (n *chartNode) ID() NodeID { return NodeChart }

func (n *chartNode) Run(ctx context.Context, st *State) error {
	c, err := n.builder.Build(ctx, st.Rows)
	if err != nil {
		return err
	}
	st.Chart = c
	return nil
}

// --- Followups ---

type followupsNode struct {
	client llm.Client
	count  int
}

func (n *followupsNode) ID() NodeID { return NodeFollowups }

func (n *followupsNode) Run(ctx context.Context, st *State) error {
	text, err := n.client.Complete(ctx, llm.Request{
		System: followupsSystemPrompt,
		User: fmt.Sprintf("Schema:\n%s\n\nUser question: %s\n\nSuggest %d follow-up questions.",
			st.Metadata, st.InputText, n.count),
	})
	if err != nil {
		return asQueryError(err, schema.ErrCodeLLMClient)
	}
	st.Followups = parseFollowups(text, n.count)
	return nil
}

// --- HandleUnanswerable ---

type unanswerableNode struct{}

func (n *unanswerableNode) ID() NodeID { return NodeUnanswerable }

func (n *unanswerableNode) Run(ctx context.Context, st *State) error {
	reason := "the question cannot be answered with the available data"
	if st.Validation != nil && st.Validation.Reason != "" {
		reason = st.Validation.Reason
	}
	st.Summary = fmt.Sprintf("I could not answer that question: %s", reason)
	return nil
}

// --- helpers ---

// parseFollowups splits model output into individual questions,
// stripping list markers, and caps the result at limit.
func parseFollowups(text string, limit int) []string {
	questions := make([]string, 0, limit)
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(line)
		q = strings.TrimLeft(q, "-*• \t")
		// Strip "1." / "2)" list markers only; a bare leading number is
		// part of the question ("2023 revenue by region?").
		i := 0
		for i < len(q) && q[i] >= '0' && q[i] <= '9' {
			i++
		}
		if i > 0 && i < len(q) && (q[i] == '.' || q[i] == ')') {
			q = strings.TrimSpace(q[i+1:])
		}
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == limit {
			break
		}
	}
	return questions
}

// sampleRows renders up to n rows as JSON for prompt grounding.
func sampleRows(rows []schema.Row, n int) string {
	if len(rows) == 0 {
		return ""
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// asQueryError normalizes a capability error into a QueryError with
// the given fallback code.
func asQueryError(err error, fallback string) *schema.QueryError {
	var qerr *schema.QueryError
	if errors.As(err, &qerr) {
		return qerr
	}
	return schema.NewError(fallback, err.Error()).WithCause(err)
}
