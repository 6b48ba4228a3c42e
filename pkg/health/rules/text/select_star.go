package text

import (
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/leapstack-labs/themis/pkg/health/sqltext"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "SELECT_STAR",
		Category:    health.CategoryText,
		Description: "Select list uses *",
		Weight:      1,
		MaxScore:    3,
		Evaluator: health.TextRule{
			Match: func(sql string, _ health.TextParams) (bool, string) {
				if !sqltext.Parse(sql).SelectStar() {
					return false, ""
				}
				return true, "select list uses * instead of explicit columns"
			},
		},
	})
}
