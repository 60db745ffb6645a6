package guard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/pkg/schema"
)

// DefaultMaxRows caps result size when a generated query carries no
// LIMIT clause or asks for more than allowed.
const DefaultMaxRows = 1000

// Rule is one static check evaluated against the cleaned query text.
// The expression receives a single variable `sql` holding the
// lowercased query and must return true for the query to pass.
type Rule struct {
	Name       string
	Engine     expressions.Engine
	Expression string
	Message    string
}

// Guard performs deterministic query rewriting and static rule checks
// before a generated query is handed to the language model for review.
type Guard struct {
	rules     []Rule
	maxRows   int
	namespace string
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxRows overrides the LIMIT cap.
func WithMaxRows(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxRows = n
		}
	}
}

// WithNamespace sets the schema namespace used to qualify bare table
// references (e.g. "analytics" turns "FROM orders" into
// "FROM analytics.orders").
func WithNamespace(ns string) Option {
	return func(g *Guard) { g.namespace = ns }
}

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(g *Guard) { g.rules = rules }
}

// New creates a Guard with the default rule set evaluated by the given
// engines.
func New(cel, expr expressions.Engine, opts ...Option) *Guard {
	g := &Guard{
		rules:   DefaultRules(cel, expr),
		maxRows: DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxRows returns the configured LIMIT cap.
func (g *Guard) MaxRows() int { return g.maxRows }

// DefaultRules returns the built-in static checks: the query must be a
// read, must not reference mutating statements, and must be a single
// statement.
func DefaultRules(cel, expr expressions.Engine) []Rule {
	return []Rule{
		{
			Name:       "select_only",
			Engine:     cel,
			Expression: `sql.startsWith("select") || sql.startsWith("with")`,
			Message:    "query must be a SELECT statement",
		},
		{
			Name:       "no_mutations",
			Engine:     expr,
			Expression: `none(["drop ", "delete ", "update ", "insert ", "alter ", "truncate ", "create ", "grant ", "revoke "], sql contains #)`,
			Message:    "query must not contain mutating statements",
		},
		{
			Name:       "single_statement",
			Engine:     cel,
			Expression: `!sql.contains(";")`,
			Message:    "query must be a single statement",
		},
	}
}

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)\\s*```")
	limitRe     = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*$`)
	tableRefRe  = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	cteNameRe   = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\s+AS\s*\(`)
	keywordOnly = map[string]struct{}{"select": {}, "lateral": {}, "unnest": {}}
)

// Clean strips markdown code fences, trailing semicolons, and
// surrounding whitespace from model output.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ";")
	return strings.TrimSpace(text)
}

// Rewrite cleans the raw query, qualifies bare table references with
// the configured namespace, and enforces the LIMIT cap. The result is
// the query that will be validated and executed.
func (g *Guard) Rewrite(raw string) string {
	query := Clean(raw)
	if query == "" {
		return query
	}
	if g.namespace != "" {
		query = g.qualify(query)
	}
	return g.enforceLimit(query)
}

// qualify prefixes unqualified table names after FROM and JOIN with the
// namespace. Already-qualified names, subqueries, function calls, and
// names bound by a CTE clause are left alone.
func (g *Guard) qualify(query string) string {
	// Names introduced with "<name> AS (" are query-local relations,
	// not catalog tables.
	local := make(map[string]struct{})
	for _, m := range cteNameRe.FindAllStringSubmatch(query, -1) {
		local[strings.ToLower(m[1])] = struct{}{}
	}

	var b strings.Builder
	last := 0
	for _, loc := range tableRefRe.FindAllStringSubmatchIndex(query, -1) {
		tableStart, tableEnd := loc[4], loc[5]
		table := query[tableStart:tableEnd]
		if _, reserved := keywordOnly[strings.ToLower(table)]; reserved {
			continue
		}
		if _, bound := local[strings.ToLower(table)]; bound {
			continue
		}
		if tableEnd < len(query) && (query[tableEnd] == '.' || query[tableEnd] == '(') {
			continue
		}
		b.WriteString(query[last:tableStart])
		b.WriteString(g.namespace)
		b.WriteString(".")
		b.WriteString(table)
		last = tableEnd
	}
	b.WriteString(query[last:])
	return b.String()
}

// enforceLimit appends a LIMIT when missing and caps an existing one at
// the configured maximum.
func (g *Guard) enforceLimit(query string) string {
	if m := limitRe.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n <= g.maxRows {
			return query
		}
		return limitRe.ReplaceAllString(query, fmt.Sprintf("LIMIT %d", g.maxRows))
	}
	return fmt.Sprintf("%s LIMIT %d", query, g.maxRows)
}

// Check evaluates every rule against the query. The first failing rule
// produces a SQL_VALIDATION_ERROR naming the rule.
func (g *Guard) Check(ctx context.Context, query string) error {
	data := map[string]any{"sql": strings.ToLower(query)}
	for _, rule := range g.rules {
		result, err := rule.Engine.Evaluate(ctx, rule.Expression, data)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeSQLValidation, "guard rule %q failed to evaluate: %s", rule.Name, err.Error()).
				WithCause(err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return schema.NewErrorf(schema.ErrCodeSQLValidation, "guard rule %q returned non-boolean result", rule.Name)
		}
		if !ok {
			return schema.NewError(schema.ErrCodeSQLValidation, rule.Message).
				WithDetails(map[string]any{"rule": rule.Name, "query": query})
		}
	}
	return nil
}
