package text

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/leapstack-labs/themis/pkg/health/sqltext"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "UNION",
		Category:    health.CategoryText,
		Description: "UNION without ALL forces a deduplicating sort",
		Weight:      1,
		MaxScore:    3,
		Evaluator: health.TextRule{
			Match: func(sql string, _ health.TextParams) (bool, string) {
				n := sqltext.Parse(sql).UnionsWithoutAll()
				if n == 0 {
					return false, ""
				}
				return true, fmt.Sprintf("%d UNION without ALL", n)
			},
		},
	})
}
