package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
)

var millionaire = catalog.Entry{ID: "m", Name: "Millionaire", Rarity: "Brainrot God", BaseIncome: 1000000}

func TestVerifyRecoversMissingTrait(t *testing.T) {
	v := NewVerifier(DefaultOptions())
	res := v.Verify(Claim{Mutation: "gold", Income: 10000000, Confidence: 0.9}, millionaire)

	assert.Equal(t, int64(1250000), res.ExpectedIncome)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningMissingModifier, res.Warnings[0].Type)
	assert.Equal(t, SeverityInfo, res.Warnings[0].Severity)
	assert.True(t, res.Passed)

	require.NotNil(t, res.Suggestion)
	assert.True(t, res.Suggestion.Found)
	assert.Equal(t, []string{"strawberry"}, res.Suggestion.Traits)
	assert.InDelta(t, 1.0, res.Suggestion.Confidence, 1e-9)
	assert.Equal(t, []string{"strawberry"}, res.AppliedTraits)
	assert.InDelta(t, 0.9*0.95, res.AdjustedConfidence, 1e-9)
}

func TestVerifyWithinMarginBoostsConfidence(t *testing.T) {
	v := NewVerifier(DefaultOptions())

	res := v.Verify(Claim{Mutation: "gold", Income: 1300000, Confidence: 0.9, Rarity: "brainrot_god"}, millionaire)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Warnings)
	assert.InDelta(t, 0.945, res.AdjustedConfidence, 1e-9)

	capped := v.Verify(Claim{Mutation: "gold", Income: 1250000, Confidence: 0.98}, millionaire)
	assert.InDelta(t, 0.99, capped.AdjustedConfidence, 1e-9)
}

func TestVerifyLowClaimIsMisread(t *testing.T) {
	v := NewVerifier(DefaultOptions())

	large := v.Verify(Claim{Mutation: "gold", Income: 500000, Confidence: 1.0}, millionaire)
	require.Len(t, large.Warnings, 1)
	assert.Equal(t, WarningIncomeMismatch, large.Warnings[0].Type)
	assert.Equal(t, SeverityHigh, large.Warnings[0].Severity)
	assert.Contains(t, large.Warnings[0].Message, "misread")
	assert.Nil(t, large.Suggestion)
	assert.False(t, large.Passed)
	assert.InDelta(t, 0.7, large.AdjustedConfidence, 1e-9)

	moderate := v.Verify(Claim{Mutation: "gold", Income: 1000000, Confidence: 1.0}, millionaire)
	require.Len(t, moderate.Warnings, 1)
	assert.Equal(t, SeverityMedium, moderate.Warnings[0].Severity)
	assert.True(t, moderate.Passed)
	assert.InDelta(t, 0.9, moderate.AdjustedConfidence, 1e-9)
}

func TestVerifyUnexplainedHighClaim(t *testing.T) {
	v := NewVerifier(DefaultOptions())
	entry := catalog.Entry{ID: "small", Name: "Small", BaseIncome: 1000}

	moderate := v.Verify(Claim{Income: 1400, Confidence: 1.0}, entry)
	require.Len(t, moderate.Warnings, 1)
	assert.Equal(t, WarningIncomeMismatch, moderate.Warnings[0].Type)
	assert.Equal(t, SeverityMedium, moderate.Warnings[0].Severity)
	assert.True(t, moderate.Passed)

	huge := v.Verify(Claim{Income: 100000, Confidence: 1.0}, entry)
	require.Len(t, huge.Warnings, 1)
	assert.Equal(t, SeverityHigh, huge.Warnings[0].Severity)
	assert.False(t, huge.Passed)
}

func TestVerifyRarity(t *testing.T) {
	v := NewVerifier(DefaultOptions())
	entry := catalog.Entry{ID: "e", Name: "E", Rarity: "Legendary", BaseIncome: 100}

	res := v.Verify(Claim{Rarity: "Epic", Income: 100, Confidence: 0.8}, entry)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningRarityMismatch, res.Warnings[0].Type)
	assert.Equal(t, SeverityLow, res.Warnings[0].Severity)
	assert.True(t, res.Passed)
	assert.InDelta(t, 0.76, res.AdjustedConfidence, 1e-9)

	same := v.Verify(Claim{Rarity: "LEGENDARY", Income: 100, Confidence: 0.8}, entry)
	assert.Empty(t, same.Warnings)
}

func TestVerifyAdvisorySuggestion(t *testing.T) {
	opts := DefaultOptions()
	opts.Solver.AutoApplyThreshold = 0.95
	v := NewVerifier(opts)

	// strawberry gives 8000, ratio 0.875
	res := v.Verify(Claim{Income: 7000, Confidence: 1.0}, catalog.Entry{ID: "x", Name: "X", BaseIncome: 1000})
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, []string{"strawberry"}, res.Suggestion.Traits)
	assert.False(t, res.Suggestion.AutoApply)
	assert.Empty(t, res.AppliedTraits)
	assert.Equal(t, SeverityInfo, res.Warnings[0].Severity)
}

func TestVerifyMissingIncomeSkipsCheck(t *testing.T) {
	v := NewVerifier(DefaultOptions())
	res := v.Verify(Claim{Confidence: 0.5}, millionaire)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Passed)
	assert.InDelta(t, 1.05, res.Factor(), 1e-9)
}

func TestSolverPairs(t *testing.T) {
	s := NewSolver(DefaultSolverOptions())
	sol := s.Solve(13000, 1000, "none", nil)

	require.True(t, sol.Found)
	require.Len(t, sol.Candidates, 3)
	assert.Equal(t, []string{"fire", "strawberry"}, sol.Traits)
	assert.InDelta(t, 1.0, sol.Confidence, 1e-9)
	for _, c := range sol.Candidates {
		assert.Len(t, c.Traits, 2)
	}
}

func TestSolverPairBound(t *testing.T) {
	opts := DefaultSolverOptions()
	opts.MaxPairSearchTraits = 0
	sol := NewSolver(opts).Solve(13000, 1000, "none", nil)
	assert.False(t, sol.Found)
}

func TestSolverSkipsKnownTraits(t *testing.T) {
	s := NewSolver(DefaultSolverOptions())
	// strawberry known: 8000; fire on top gives 8 + 5 = 13
	sol := s.Solve(13000, 1000, "none", []string{"strawberry"})

	require.True(t, sol.Found)
	assert.Equal(t, []string{"fire"}, sol.Traits)
	for _, c := range sol.Candidates {
		assert.NotContains(t, c.Traits, "strawberry")
	}
}

func TestSolverNoOps(t *testing.T) {
	s := NewSolver(DefaultSolverOptions())

	within := s.Solve(1050, 1000, "none", nil)
	assert.False(t, within.Found)
	assert.InDelta(t, 1.0, within.Confidence, 1e-9)

	lower := s.Solve(500, 1000, "none", nil)
	assert.False(t, lower.Found)

	zero := s.Solve(500, 0, "none", nil)
	assert.False(t, zero.Found)
}
