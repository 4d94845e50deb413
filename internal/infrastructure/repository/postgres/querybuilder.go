package postgres

import (
	"strconv"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// predicate is a SQL boolean expression with ? placeholders bound in order.
type predicate struct {
	expr string
	args []any
}

func eq(column string, v any) predicate {
	return predicate{expr: column + " = ?", args: []any{v}}
}

func anyOf(column string, values []string) predicate {
	return predicate{expr: column + " = ANY(?)", args: []any{values}}
}

func expr(sql string, args ...any) predicate {
	return predicate{expr: sql, args: args}
}

// query accumulates positional arguments while rendering predicates to
// $n placeholders.
type query struct {
	args []any
}

// bind adds v and returns its placeholder.
func (q *query) bind(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *query) render(p predicate) string {
	var b strings.Builder
	next := 0
	for _, r := range p.expr {
		if r == '?' && next < len(p.args) {
			b.WriteString(q.bind(p.args[next]))
			next++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// where joins predicates with AND. An empty list renders TRUE.
func (q *query) where(preds ...predicate) string {
	if len(preds) == 0 {
		return "TRUE"
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, q.render(p))
	}
	return strings.Join(parts, " AND ")
}

// passageFilters restricts verses v joined with books b.
func passageFilters(translationIDs []string, filters domain.SearchFilters) []predicate {
	preds := []predicate{anyOf("v.translation_id", translationIDs)}
	switch filters.Testament {
	case domain.TestamentOld, domain.TestamentNew:
		preds = append(preds, eq("b.testament", filters.Testament))
	}
	if genre := strings.TrimSpace(filters.Genre); genre != "" {
		preds = append(preds, expr("lower(b.genre) = ?", strings.ToLower(genre)))
	}
	if len(filters.Books) > 0 {
		books := make([]string, 0, len(filters.Books))
		for _, book := range filters.Books {
			if book = strings.TrimSpace(book); book != "" {
				books = append(books, strings.ToUpper(book))
			}
		}
		if len(books) > 0 {
			preds = append(preds, anyOf("upper(b.abbreviation)", books))
		}
	}
	return preds
}
