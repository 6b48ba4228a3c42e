package text

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/leapstack-labs/themis/pkg/health/sqltext"
)

func init() {
	registerClauseSubquery("SUBQUERY_IN_FROM", "from", "Subquery used as a derived table in FROM")
	registerClauseSubquery("SUBQUERY_IN_WHERE", "where", "Subquery used in a WHERE condition")
	registerClauseSubquery("SUBQUERY_IN_SELECT", "select", "Subquery used in the select list")

	health.Register(health.RuleDef{
		ID:          "DUPLICATE_SUBQUERY",
		Category:    health.CategoryText,
		Description: "The same subquery appears more than once",
		Weight:      2,
		MaxScore:    5,
		Evaluator: health.TextRule{
			Match: func(sql string, _ health.TextParams) (bool, string) {
				dups := sqltext.Parse(sql).DuplicateSubqueries()
				if len(dups) == 0 {
					return false, ""
				}
				return true, fmt.Sprintf("subquery repeated: %s", dups[0])
			},
		},
	})
}

func registerClauseSubquery(id, keyword, description string) {
	health.Register(health.RuleDef{
		ID:          id,
		Category:    health.CategoryText,
		Description: description,
		Weight:      2,
		MaxScore:    5,
		Evaluator: health.TextRule{
			Match: func(sql string, _ health.TextParams) (bool, string) {
				if !sqltext.Parse(sql).HasSubqueryIn(keyword) {
					return false, ""
				}
				return true, fmt.Sprintf("subquery found in %s clause", keyword)
			},
		},
	})
}
