package health

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Family tags the parameter struct an evaluator expects.
type Family string

// Parameter families.
const (
	FamilyCount    Family = "count"
	FamilyRatio    Family = "ratio"
	FamilyWidth    Family = "width"
	FamilyText     Family = "text"
	FamilyExtended Family = "extended"
)

// Params is the tagged union of per-family parameter structs.
type Params interface {
	Family() Family
	Score() Scoring
}

// Scoring holds the fields every family shares.
type Scoring struct {
	Weight   float64 `mapstructure:"weight"`
	MaxScore float64 `mapstructure:"max_score"`
}

// CountParams parameterizes threshold-count rules.
type CountParams struct {
	Scoring   `mapstructure:",squash"`
	Threshold float64 `mapstructure:"threshold"`
}

// RatioParams parameterizes ratio rules. Threshold is a percentage; Bound is an
// optional secondary threshold used by the numerator query.
type RatioParams struct {
	Scoring   `mapstructure:",squash"`
	Threshold float64 `mapstructure:"threshold"`
	Bound     float64 `mapstructure:"bound"`
}

// WidthParams parameterizes byte-width rules.
type WidthParams struct {
	Scoring      `mapstructure:",squash"`
	Limit        int `mapstructure:"limit"`
	CharsetWidth int `mapstructure:"charset_width"` // bytes per character when the charset is unknown
}

// TextParams parameterizes SQL-text rules.
type TextParams struct {
	Scoring `mapstructure:",squash"`
	Limit   int `mapstructure:"limit"`
}

// ExtendedParams parameterizes operator-supplied rules.
type ExtendedParams struct {
	Scoring    `mapstructure:",squash"`
	Thresholds map[string]any `mapstructure:"thresholds"`
}

func (CountParams) Family() Family    { return FamilyCount }
func (RatioParams) Family() Family    { return FamilyRatio }
func (WidthParams) Family() Family    { return FamilyWidth }
func (TextParams) Family() Family     { return FamilyText }
func (ExtendedParams) Family() Family { return FamilyExtended }

func (p CountParams) Score() Scoring    { return p.Scoring }
func (p RatioParams) Score() Scoring    { return p.Scoring }
func (p WidthParams) Score() Scoring    { return p.Scoring }
func (p TextParams) Score() Scoring     { return p.Scoring }
func (p ExtendedParams) Score() Scoring { return p.Scoring }

// BuildParams resolves the parameters of one rule for one run.
//
// Lookup order for a threshold: the per-rule override, the run's named thresholds,
// then the rule's own default. Weight and max_score come from the rule definition
// unless overridden.
func BuildParams(def RuleDef, thresholds map[string]any, override map[string]any) (Params, error) {
	if def.Evaluator == nil {
		return nil, fmt.Errorf("rule %s has no evaluator", def.ID)
	}

	raw := map[string]any{
		"weight":    def.Weight,
		"max_score": def.MaxScore,
	}
	for _, key := range []string{"weight", "max_score"} {
		if v, ok := override[key]; ok {
			raw[key] = v
		}
	}

	lookup := func(name string) (any, bool) {
		if v, ok := override[name]; ok {
			return v, true
		}
		if v, ok := thresholds[name]; ok {
			return v, true
		}
		v, ok := def.Thresholds[name]
		return v, ok
	}

	family := def.Evaluator.Family()
	if family == FamilyExtended {
		merged := make(map[string]any)
		for _, name := range def.ThresholdKeys() {
			if v, ok := lookup(name); ok {
				merged[name] = v
			}
		}
		raw["thresholds"] = merged
	} else {
		for field, name := range def.Bind {
			v, ok := lookup(name)
			if !ok {
				return nil, &MissingParameterError{RuleID: def.ID, Key: name}
			}
			raw[field] = v
		}
	}

	params, err := DecodeParams(family, raw)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", def.ID, err)
	}
	if s := params.Score(); s.MaxScore < 0 || s.Weight < 0 {
		return nil, fmt.Errorf("rule %s: weight and max_score must be >= 0 (got %v, %v)", def.ID, s.Weight, s.MaxScore)
	}
	return params, nil
}

// DecodeParams decodes a raw parameter map into the struct of the given family.
func DecodeParams(family Family, raw map[string]any) (Params, error) {
	switch family {
	case FamilyCount:
		var p CountParams
		err := decodeInto(raw, &p)
		return p, err
	case FamilyRatio:
		var p RatioParams
		err := decodeInto(raw, &p)
		return p, err
	case FamilyWidth:
		var p WidthParams
		err := decodeInto(raw, &p)
		return p, err
	case FamilyText:
		var p TextParams
		err := decodeInto(raw, &p)
		return p, err
	case FamilyExtended:
		var p ExtendedParams
		err := decodeInto(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown parameter family %q", family)
	}
}

func decodeInto(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}
