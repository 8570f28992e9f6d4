package repository

import (
	"fmt"
	"strings"

	"github.com/rpattn/yoda/internal/domain"
)

const (
	DefaultSearchLimit = 100
	MaxSearchLimit     = 1000
)

// Predicate is one substring condition of a search.
type Predicate struct {
	Field   string
	Pattern string
	Array   bool
	// Expr is the SQL condition with its placeholders already numbered.
	Expr string
}

// Expansion is a lateral unnest of an array field.
type Expansion struct {
	Field string
	Alias string
	// Clause is the JOIN clause with its placeholder already numbered.
	Clause string
}

// SearchQuery is a parameterised projection search.
type SearchQuery struct {
	SQL        string
	Args       []any
	Expansions []Expansion
	Predicates []Predicate
	Definition domain.EntityDefinition
	Filter     domain.SearchFilter
	Pagination domain.Pagination
}

type sqlBuilder struct {
	args []any
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

// NormalizePagination clamps the limit into [1, maxLimit] and the skip to >= 0.
func NormalizePagination(p domain.Pagination, defaultLimit, maxLimit int) domain.Pagination {
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxSearchLimit
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// LikePattern wraps value for a containment match, escaping LIKE wildcards.
func LikePattern(value string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(value) + "%"
}

// BuildSearchQuery renders a search over the projection of def. $1 is the
// entity type; each filter field contributes its key and a pattern. Array
// fields are unnested laterally and rows are grouped by id so an entity
// appears once however many elements match.
func BuildSearchQuery(def domain.EntityDefinition, filter domain.SearchFilter, pagination domain.Pagination) (SearchQuery, error) {
	query := SearchQuery{
		Definition: def,
		Filter:     filter,
		Pagination: pagination,
	}

	builder := newSQLBuilder()
	typeIdx := builder.addArg(def.Name)

	for _, name := range filter.Fields() {
		field, ok := def.Field(name)
		if !ok {
			return SearchQuery{}, domain.Validationf("%s has no field %q", def.Name, name)
		}
		if !field.Searchable {
			return SearchQuery{}, domain.Validationf("field %q of %s is not searchable", name, def.Name)
		}

		keyPlaceholder := builder.placeholder(builder.addArg(name))
		pattern := LikePattern(filter[name])
		patternPlaceholder := builder.placeholder(builder.addArg(pattern))

		if field.Array {
			alias := fmt.Sprintf("e%d", len(query.Expansions)+1)
			query.Expansions = append(query.Expansions, Expansion{
				Field: name,
				Alias: alias,
				Clause: fmt.Sprintf(
					"CROSS JOIN LATERAL jsonb_array_elements_text(COALESCE(p.body -> %s::text, '[]'::jsonb)) AS %s(val)",
					keyPlaceholder, alias),
			})
			query.Predicates = append(query.Predicates, Predicate{
				Field:   name,
				Pattern: pattern,
				Array:   true,
				Expr:    fmt.Sprintf("%s.val LIKE %s", alias, patternPlaceholder),
			})
			continue
		}

		query.Predicates = append(query.Predicates, Predicate{
			Field:   name,
			Pattern: pattern,
			Expr:    fmt.Sprintf("p.body ->> %s::text LIKE %s", keyPlaceholder, patternPlaceholder),
		})
	}

	var sb strings.Builder
	sb.WriteString("SELECT p.id, p.entity_type, p.body, p.last_updated\nFROM projection p\n")
	for _, expansion := range query.Expansions {
		sb.WriteString(expansion.Clause)
		sb.WriteString("\n")
	}
	sb.WriteString("WHERE p.entity_type = ")
	sb.WriteString(builder.placeholder(typeIdx))
	for _, predicate := range query.Predicates {
		sb.WriteString("\n  AND ")
		sb.WriteString(predicate.Expr)
	}
	sb.WriteString("\nGROUP BY p.id\nORDER BY p.last_updated ASC, p.id ASC\n")

	limitIdx := builder.addArg(pagination.Limit + 1)
	offsetIdx := builder.addArg(pagination.Skip)
	fmt.Fprintf(&sb, "LIMIT %s OFFSET %s", builder.placeholder(limitIdx), builder.placeholder(offsetIdx))

	query.SQL = sb.String()
	query.Args = builder.args
	return query, nil
}
