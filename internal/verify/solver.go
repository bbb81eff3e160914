package verify

import (
	"math"
	"sort"

	"github.com/adverant/nexus/floorscan-worker/internal/income"
)

// SolverOptions tunes the missing-modifier search.
type SolverOptions struct {
	// Ratios within this band of 1 need no explanation.
	NoOpMargin float64
	// A candidate is accepted when its ratio lands within this band of 1.
	AcceptMargin float64
	// Pairs are only tried when no single trait fits and the ratio exceeds this.
	PairRatioThreshold float64
	// Pair search only considers the first N unknown traits (0 disables it).
	MaxPairSearchTraits int
	MaxCandidates       int
	AutoApplyThreshold  float64
}

// DefaultSolverOptions returns the production tunables.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		NoOpMargin:          0.10,
		AcceptMargin:        0.15,
		PairRatioThreshold:  3.0,
		MaxPairSearchTraits: 64,
		MaxCandidates:       3,
		AutoApplyThreshold:  0.85,
	}
}

// Candidate is one trait set that would explain the claimed income.
type Candidate struct {
	Traits     []string `json:"traits"`
	Income     int64    `json:"income"`
	Ratio      float64  `json:"ratio"`
	Confidence float64  `json:"confidence"`
}

// Solution is the solver's answer.
type Solution struct {
	Found      bool        `json:"found"`
	Ratio      float64     `json:"ratio"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// Best candidate's traits, already excluding known ones
	Traits         []string `json:"traits,omitempty"`
	ExpectedIncome int64    `json:"expectedIncome,omitempty"`
	Confidence     float64  `json:"confidence"`
	AutoApply      bool     `json:"autoApply"`
	Reason         string   `json:"reason,omitempty"`
}

// Solver searches for traits the extractor missed.
type Solver struct {
	opts SolverOptions
}

// NewSolver creates a solver.
func NewSolver(opts SolverOptions) *Solver {
	return &Solver{opts: opts}
}

// Solve explains a claimed income that is higher than the model predicts for
// base, mutation and known traits by adding one or two unknown traits.
func (s *Solver) Solve(claimed, base int64, mutation string, known []string) Solution {
	calculated := income.Total(base, mutation, known)
	if calculated <= 0 || claimed <= 0 {
		return Solution{Reason: "nothing to compare"}
	}

	ratio := float64(claimed) / float64(calculated)
	if math.Abs(ratio-1) <= s.opts.NoOpMargin {
		return Solution{Ratio: ratio, Confidence: 1.0, Reason: "claimed income already matches"}
	}
	if ratio < 1 {
		return Solution{Ratio: ratio, Reason: "claimed income is lower than calculated"}
	}

	unknown := unknownTraits(known)
	var cands []Candidate

	for _, t := range unknown {
		if c, ok := s.try(claimed, base, mutation, known, t); ok {
			cands = append(cands, c)
		}
	}

	if len(cands) == 0 && ratio > s.opts.PairRatioThreshold {
		pool := unknown
		if len(pool) > s.opts.MaxPairSearchTraits {
			pool = pool[:s.opts.MaxPairSearchTraits]
		}
		for i := 0; i < len(pool); i++ {
			for j := i + 1; j < len(pool); j++ {
				if c, ok := s.try(claimed, base, mutation, known, pool[i], pool[j]); ok {
					cands = append(cands, c)
				}
			}
		}
	}

	if len(cands) == 0 {
		return Solution{Ratio: ratio, Reason: "no trait combination explains the difference"}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Confidence > cands[j].Confidence
	})
	if len(cands) > s.opts.MaxCandidates {
		cands = cands[:s.opts.MaxCandidates]
	}

	best := cands[0]
	return Solution{
		Found:          true,
		Ratio:          ratio,
		Candidates:     cands,
		Traits:         best.Traits,
		ExpectedIncome: best.Income,
		Confidence:     best.Confidence,
		AutoApply:      best.Confidence > s.opts.AutoApplyThreshold,
	}
}

func (s *Solver) try(claimed, base int64, mutation string, known []string, extra ...string) (Candidate, bool) {
	all := make([]string, 0, len(known)+len(extra))
	all = append(all, known...)
	all = append(all, extra...)

	test := income.Total(base, mutation, all)
	if test <= 0 {
		return Candidate{}, false
	}
	r := float64(claimed) / float64(test)
	if math.Abs(r-1) >= s.opts.AcceptMargin {
		return Candidate{}, false
	}
	return Candidate{
		Traits:     append([]string(nil), extra...),
		Income:     test,
		Ratio:      r,
		Confidence: 1 - math.Abs(r-1),
	}, true
}

func unknownTraits(known []string) []string {
	have := make(map[string]bool, len(known))
	for _, k := range known {
		have[k] = true
	}
	var out []string
	for _, k := range income.TraitKeys() {
		if !have[k] {
			out = append(out, k)
		}
	}
	return out
}
