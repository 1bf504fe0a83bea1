package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionsNumbersPlaceholders(t *testing.T) {
	var cond conditions
	assert.Equal(t, "", cond.where())

	cond.add("a = ?", 1)
	cond.add("(b = ? OR c = ?)", "x", "y")

	assert.Equal(t, " WHERE a = $1 AND (b = $2 OR c = $3)", cond.where())
	assert.Equal(t, []any{1, "x", "y"}, cond.args)

	clause, args := cond.page(Page{Offset: 40, Limit: 20})
	assert.Equal(t, " OFFSET $4 LIMIT $5", clause)
	assert.Equal(t, []any{1, "x", "y", 40, 20}, args)
	assert.Len(t, cond.args, 3, "page must not grow the shared args")
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Offset: 0, Limit: defaultListLimit}, Page{Offset: -5}.normalize())
	assert.Equal(t, Page{Offset: 10, Limit: 5}, Page{Offset: 10, Limit: 5}.normalize())
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, "%go%", containsPattern("go"))
	assert.Equal(t, `%50\%%`, containsPattern("50%"))
	assert.Equal(t, `%c\_o%`, containsPattern("c_o"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}
