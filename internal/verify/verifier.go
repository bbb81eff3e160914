// Package verify cross-checks an extracted record against the income model
// and the catalog, and explains over-claimed incomes with missing traits.
package verify

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
)

// Severity of a verification warning
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Warning types
const (
	WarningIncomeMismatch  = "income_mismatch"
	WarningMissingModifier = "missing_modifier_detected"
	WarningRarityMismatch  = "rarity_mismatch"
)

// Warning is one finding.
type Warning struct {
	Type     string                 `json:"type"`
	Severity Severity               `json:"severity"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Claim is what the extractor read off a card.
type Claim struct {
	Rarity     string
	Mutation   string
	Traits     []string
	Income     int64
	Confidence float64
}

// Result is the outcome of Verify.
type Result struct {
	Passed             bool      `json:"passed"`
	Warnings           []Warning `json:"warnings"`
	InitialConfidence  float64   `json:"initialConfidence"`
	AdjustedConfidence float64   `json:"adjustedConfidence"`
	ExpectedIncome     int64     `json:"expectedIncome"`
	ClaimedIncome      int64     `json:"claimedIncome"`
	Suggestion         *Solution `json:"suggestion,omitempty"`
	// Traits the caller should add to the record (auto-apply path)
	AppliedTraits []string `json:"appliedTraits,omitempty"`
	Trace         []string `json:"trace,omitempty"`
}

// Factor returns adjusted/initial, the multiplicative correction verification
// applies to downstream confidence.
func (r Result) Factor() float64 {
	if r.InitialConfidence <= 0 {
		return 1.0
	}
	return r.AdjustedConfidence / r.InitialConfidence
}

// Options tunes verification.
type Options struct {
	Margin         float64
	LargeMismatch  float64
	NoWarningBonus float64
	ConfidenceCap  float64
	Solver         SolverOptions
}

// DefaultOptions returns the production tunables.
func DefaultOptions() Options {
	return Options{
		Margin:         0.10,
		LargeMismatch:  0.50,
		NoWarningBonus: 1.05,
		ConfidenceCap:  0.99,
		Solver:         DefaultSolverOptions(),
	}
}

// Verifier reconciles a claim with a catalog entry.
type Verifier struct {
	opts   Options
	solver *Solver
}

// NewVerifier creates a verifier and its solver.
func NewVerifier(opts Options) *Verifier {
	return &Verifier{opts: opts, solver: NewSolver(opts.Solver)}
}

// Verify checks the claimed income against the model and the claimed rarity
// against the catalog. Passed is false only when a high-severity warning is
// raised.
func (v *Verifier) Verify(claim Claim, entry catalog.Entry) Result {
	model := income.Compute(entry.BaseIncome, income.NormalizeMutation(claim.Mutation), claim.Traits)
	res := Result{
		InitialConfidence:  claim.Confidence,
		AdjustedConfidence: claim.Confidence,
		ExpectedIncome:     model.Total,
		ClaimedIncome:      claim.Income,
		Trace:              model.Trace,
	}

	if claim.Income > 0 && model.Total > 0 {
		v.checkIncome(&res, claim, entry)
	}

	if claim.Rarity != "" && entry.Rarity != "" && normalizeRarity(claim.Rarity) != normalizeRarity(entry.Rarity) {
		res.Warnings = append(res.Warnings, Warning{
			Type:     WarningRarityMismatch,
			Severity: SeverityLow,
			Message:  fmt.Sprintf("Extracted rarity %q differs from catalog rarity %q", claim.Rarity, entry.Rarity),
			Data: map[string]interface{}{
				"extracted": claim.Rarity,
				"catalog":   entry.Rarity,
			},
		})
		res.AdjustedConfidence *= 0.95
	}

	if len(res.Warnings) == 0 {
		res.AdjustedConfidence = math.Min(res.AdjustedConfidence*v.opts.NoWarningBonus, v.opts.ConfidenceCap)
	}
	res.AdjustedConfidence = clamp01(res.AdjustedConfidence)

	res.Passed = true
	for _, w := range res.Warnings {
		if w.Severity == SeverityHigh {
			res.Passed = false
			break
		}
	}
	return res
}

func (v *Verifier) checkIncome(res *Result, claim Claim, entry catalog.Entry) {
	expected := res.ExpectedIncome
	diff := math.Abs(float64(claim.Income-expected)) / float64(expected)
	if diff <= v.opts.Margin {
		return
	}

	if claim.Income > expected {
		sol := v.solver.Solve(claim.Income, entry.BaseIncome, income.NormalizeMutation(claim.Mutation), claim.Traits)
		if sol.Found {
			res.Suggestion = &sol
			res.Warnings = append(res.Warnings, Warning{
				Type:     WarningMissingModifier,
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("Claimed income is %.2fx expected; likely missing trait(s) %s", sol.Ratio, strings.Join(sol.Traits, ", ")),
				Data: map[string]interface{}{
					"suggestedTraits": sol.Traits,
					"confidence":      sol.Confidence,
					"autoApplied":     sol.AutoApply,
				},
			})
			res.AdjustedConfidence *= 0.95
			if sol.AutoApply {
				res.AppliedTraits = append([]string(nil), sol.Traits...)
			}
			return
		}
	}

	severity := SeverityMedium
	factor := 0.9
	if diff > v.opts.LargeMismatch {
		severity = SeverityHigh
		factor = 0.7
	}

	msg := fmt.Sprintf("Claimed income %s/s differs from expected %s/s by %.0f%%",
		income.FormatGameNumber(claim.Income), income.FormatGameNumber(expected), diff*100)
	if claim.Income < expected {
		msg += "; the income text was likely misread"
	}

	res.Warnings = append(res.Warnings, Warning{
		Type:     WarningIncomeMismatch,
		Severity: severity,
		Message:  msg,
		Data: map[string]interface{}{
			"claimed":  claim.Income,
			"expected": expected,
			"diff":     diff,
		},
	})
	res.AdjustedConfidence *= factor
}

func normalizeRarity(r string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(r, "_", " "))), " ")
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
