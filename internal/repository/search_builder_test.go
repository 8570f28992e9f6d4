package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/yoda/internal/domain"
)

func TestBuildSearchQueryScalarFilter(t *testing.T) {
	def := domain.AccountDefinition()
	query, err := BuildSearchQuery(def, domain.SearchFilter{"email": "a@b"}, domain.Pagination{Skip: 0, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, []any{"Account", "email", "%a@b%", 11, 0}, query.Args)
	assert.Empty(t, query.Expansions)
	require.Len(t, query.Predicates, 1)
	assert.Equal(t, "p.body ->> $2::text LIKE $3", query.Predicates[0].Expr)
	assert.Contains(t, query.SQL, "WHERE p.entity_type = $1\n  AND p.body ->> $2::text LIKE $3")
	assert.Contains(t, query.SQL, "ORDER BY p.last_updated ASC, p.id ASC")
	assert.True(t, strings.HasSuffix(query.SQL, "LIMIT $4 OFFSET $5"))
}

func TestBuildSearchQueryNoFilter(t *testing.T) {
	query, err := BuildSearchQuery(domain.AccountDefinition(), nil, domain.Pagination{Skip: 20, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, []any{"Account", 6, 20}, query.Args)
	assert.Empty(t, query.Predicates)
	assert.NotContains(t, query.SQL, " AND ")
	assert.True(t, strings.HasSuffix(query.SQL, "LIMIT $2 OFFSET $3"))
}

func TestBuildSearchQueryArrayFieldIsExpandedSeparately(t *testing.T) {
	def := domain.OrganizationDefinition()
	filter := domain.SearchFilter{"tag": "Educ", "name": "Acme"}
	query, err := BuildSearchQuery(def, filter, domain.Pagination{Limit: 10})
	require.NoError(t, err)

	// fields are visited in name order: name then tag
	assert.Equal(t, []any{"Organization", "name", "%Acme%", "tag", "%Educ%", 11, 0}, query.Args)

	require.Len(t, query.Expansions, 1)
	assert.Equal(t, "tag", query.Expansions[0].Field)
	assert.Equal(t, "e1", query.Expansions[0].Alias)
	assert.Contains(t, query.Expansions[0].Clause, "jsonb_array_elements_text(COALESCE(p.body -> $4::text, '[]'::jsonb)) AS e1(val)")

	require.Len(t, query.Predicates, 2)
	assert.False(t, query.Predicates[0].Array)
	assert.True(t, query.Predicates[1].Array)
	assert.Equal(t, "e1.val LIKE $5", query.Predicates[1].Expr)

	assert.Contains(t, query.SQL, "FROM projection p\nCROSS JOIN LATERAL")
	assert.Contains(t, query.SQL, "GROUP BY p.id")
}

func TestBuildSearchQueryRejectsUnknownAndUnsearchableFields(t *testing.T) {
	def := domain.AccountDefinition()

	_, err := BuildSearchQuery(def, domain.SearchFilter{"colour": "red"}, domain.Pagination{Limit: 10})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = BuildSearchQuery(def, domain.SearchFilter{"password": "x"}, domain.Pagination{Limit: 10})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\%\_off\\%`, LikePattern(`50%_off\`))
	assert.Equal(t, "%%", LikePattern(""))
	assert.Equal(t, `50%_off\`, unescapeLike(LikePattern(`50%_off\`)))
}

func TestNormalizePagination(t *testing.T) {
	assert.Equal(t, domain.Pagination{Skip: 0, Limit: DefaultSearchLimit}, NormalizePagination(domain.Pagination{}, 0, 0))
	assert.Equal(t, domain.Pagination{Skip: 0, Limit: 50}, NormalizePagination(domain.Pagination{Skip: -3, Limit: 500}, 10, 50))
	assert.Equal(t, domain.Pagination{Skip: 7, Limit: 25}, NormalizePagination(domain.Pagination{Skip: 7}, 25, 50))
}
