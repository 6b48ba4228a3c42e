package text

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/leapstack-labs/themis/pkg/health/sqltext"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "TOOMANY_IN_LIST",
		Category:    health.CategoryText,
		Description: "IN list with more than in_list_num separators",
		Weight:      2,
		MaxScore:    5,
		Thresholds:  map[string]any{"in_list_num": 200},
		Bind:        map[string]string{"limit": "in_list_num"},
		Evaluator:   health.TextRule{Match: matchInList},
	})
}

// matchInList counts the commas of each IN (...) list. Lists holding a subquery are
// skipped.
func matchInList(sql string, p health.TextParams) (bool, string) {
	for _, list := range sqltext.Parse(sql).InLists() {
		if list.Subquery {
			continue
		}
		if list.Commas > p.Limit {
			return true, fmt.Sprintf("IN list has %d items (limit %d)", list.Commas+1, p.Limit)
		}
	}
	return false, ""
}
