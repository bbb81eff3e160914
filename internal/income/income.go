// Package income is the deterministic economic model: given a catalog base
// income, a mutation and a set of traits it yields the income a card should
// display. Everything else in the pipeline is checked against it.
package income

import (
	"fmt"
	"math"
	"sort"
)

// Result is the outcome of Compute.
type Result struct {
	Base           int64
	Total          int64
	MutationFactor float64
	TraitFactor    float64
	// Traits actually applied, in application order
	AppliedTraits []string
	Trace         []string
}

// floatSlack absorbs representation error before flooring, so 1.15*100 is 115.
const floatSlack = 1e-6

// Compute applies the mutation factor and the stacked trait factor to base.
//
// Traits are ordered by |multiplier| descending. The first contributes its
// full multiplier; every later one adds (multiplier - 1). Unknown mutation or
// trait keys are neutral. A non-positive base always yields 0.
func Compute(base int64, mutation string, traitKeys []string) Result {
	res := Result{Base: base, MutationFactor: 1.0, TraitFactor: 1.0}

	if base <= 0 {
		res.Trace = append(res.Trace, fmt.Sprintf("Base income %d is not positive, total is 0", base))
		return res
	}

	res.Trace = append(res.Trace, fmt.Sprintf("Base income: %s/s", FormatGameNumber(base)))
	running := float64(base)

	if m, ok := mutations[mutation]; ok {
		res.MutationFactor = m.Multiplier
		if m.Key != NoMutation {
			running *= m.Multiplier
			res.Trace = append(res.Trace, fmt.Sprintf("Mutation (%s): x%s -> %s/s",
				m.Name, formatFactor(m.Multiplier), FormatGameNumber(int64(math.Floor(running+floatSlack)))))
		}
	} else if mutation != "" {
		res.Trace = append(res.Trace, fmt.Sprintf("Mutation %q unknown, treated as x1", mutation))
	}

	ordered := orderTraits(traitKeys)
	for i, t := range ordered {
		if i == 0 {
			res.TraitFactor = t.Multiplier
			res.Trace = append(res.Trace, fmt.Sprintf("Trait (%s): x%s", t.Name, formatFactor(t.Multiplier)))
		} else {
			res.TraitFactor += t.Multiplier - 1
			res.Trace = append(res.Trace, fmt.Sprintf("Trait (%s): %+gx -> x%s",
				t.Name, t.Multiplier-1, formatFactor(res.TraitFactor)))
		}
		res.AppliedTraits = append(res.AppliedTraits, t.Key)
	}

	res.Total = int64(math.Floor(float64(base)*res.MutationFactor*res.TraitFactor + floatSlack))
	if res.Total < 0 {
		res.Total = 0
	}
	res.Trace = append(res.Trace, fmt.Sprintf("Total: %s/s", FormatGameNumber(res.Total)))
	return res
}

// Total is Compute without the trace.
func Total(base int64, mutation string, traitKeys []string) int64 {
	return Compute(base, mutation, traitKeys).Total
}

// orderTraits resolves keys, drops unknowns and duplicates, and sorts by
// |multiplier| descending with the key as tie-break so input order never
// changes the result.
func orderTraits(keys []string) []Trait {
	seen := make(map[string]bool, len(keys))
	out := make([]Trait, 0, len(keys))
	for _, k := range keys {
		t, ok := traits[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Multiplier), math.Abs(out[j].Multiplier)
		if ai != aj {
			return ai > aj
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func formatFactor(f float64) string {
	return fmt.Sprintf("%g", f)
}
