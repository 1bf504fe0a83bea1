package store

import (
	"fmt"
	"strings"
)

const defaultListLimit = 20

// Page is an offset/limit window over a list query.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit < 1 {
		p.Limit = defaultListLimit
	}
	return p
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

// conditions accumulates WHERE predicates with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

// add appends a predicate; each "?" in clause is replaced by the next $n.
func (c *conditions) add(clause string, args ...any) {
	for _, arg := range args {
		c.args = append(c.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(c.args)), 1)
	}
	c.clauses = append(c.clauses, clause)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page appends OFFSET/LIMIT placeholders and returns the clause and full args.
func (c *conditions) page(p Page) (string, []any) {
	p = p.normalize()
	args := append(append([]any(nil), c.args...), p.Offset, p.Limit)
	return fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)-1, len(args)), args
}
