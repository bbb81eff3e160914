package income

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNoModifiers(t *testing.T) {
	res := Compute(1000, NoMutation, nil)
	assert.Equal(t, int64(1000), res.Total)
	assert.Equal(t, 1.0, res.TraitFactor)
	assert.Empty(t, res.AppliedTraits)
}

func TestComputeMutationOnly(t *testing.T) {
	assert.Equal(t, int64(1250), Total(1000, "gold", nil))
	assert.Equal(t, int64(10000), Total(1000, "rainbow", nil))
	assert.Equal(t, int64(7500), Total(1000, "yin_yang", nil))
}

func TestComputeTraitStacking(t *testing.T) {
	// first trait full, second adds (m - 1)
	assert.Equal(t, int64(800), Total(100, NoMutation, []string{"fire", "taco"}))
	assert.Equal(t, int64(800), Total(100, NoMutation, []string{"taco", "fire"}))

	// fire, taco, hat: 6 + 2 + 0
	assert.Equal(t, int64(800), Total(100, NoMutation, []string{"hat", "taco", "fire"}))
}

func TestComputeNegativeTraitNotFirst(t *testing.T) {
	// 6 + (-0.5 - 1) = 4.5
	res := Compute(100, NoMutation, []string{"sleepy", "fire"})
	assert.Equal(t, int64(450), res.Total)
	assert.Equal(t, []string{"fire", "sleepy"}, res.AppliedTraits)
}

func TestComputeMutationAndTraits(t *testing.T) {
	// strawberry leads, fire adds (6 - 1): 1000 * 1.25 * (8 + 5) = 16250
	assert.Equal(t, int64(16250), Total(1000, "gold", []string{"fire", "strawberry"}))
}

func TestComputeNonPositiveBase(t *testing.T) {
	assert.Equal(t, int64(0), Total(0, "rainbow", []string{"fire"}))
	assert.Equal(t, int64(0), Total(-50, NoMutation, nil))
}

func TestComputeUnknownKeysAreNeutral(t *testing.T) {
	assert.Equal(t, Total(100, NoMutation, []string{"fire"}), Total(100, NoMutation, []string{"fire", "bogus"}))
	assert.Equal(t, int64(100), Total(100, "plaid", nil))
}

func TestComputeDuplicateTraitsCountOnce(t *testing.T) {
	assert.Equal(t, int64(600), Total(100, NoMutation, []string{"fire", "fire"}))
}

func TestComputeOrderInvariance(t *testing.T) {
	keys := []string{"zombie", "rain", "sleepy", "crab", "nyan"}
	want := Total(12345, "diamond", keys)
	for i := 0; i < len(keys); i++ {
		rotated := append(append([]string{}, keys[i:]...), keys[:i]...)
		assert.Equal(t, want, Total(12345, "diamond", rotated), "rotation %d", i)
	}
}

func TestComputeTrace(t *testing.T) {
	res := Compute(1000000, "gold", []string{"fire"})
	require.Len(t, res.Trace, 4)
	assert.Equal(t, "Base income: $1M/s", res.Trace[0])
	assert.Contains(t, res.Trace[1], "Gold")
	assert.Contains(t, res.Trace[2], "Fire")
	assert.Equal(t, "Total: $7.5M/s", res.Trace[3])
}

func TestNormalizeLabels(t *testing.T) {
	assert.Equal(t, "yin_yang", NormalizeMutation("Yin Yang"))
	assert.Equal(t, "gold", NormalizeMutation(" GOLD "))
	assert.Equal(t, NoMutation, NormalizeMutation(""))
	assert.Equal(t, NoMutation, NormalizeMutation("sparkly"))

	k, ok := NormalizeTrait("Jack O Lantern")
	assert.True(t, ok)
	assert.Equal(t, "pumpkin", k)

	_, ok = NormalizeTrait("mystery_icon")
	assert.False(t, ok)

	assert.Equal(t, []string{"fire", "hat"}, NormalizeTraits([]string{"Fire", "santa_hat", "top_hat", "unknown"}))
}

func TestTablesAreCopied(t *testing.T) {
	keys := TraitKeys()
	keys[0] = "mutated"
	assert.NotEqual(t, "mutated", TraitKeys()[0])

	tr, ok := LookupTrait("strawberry")
	require.True(t, ok)
	assert.Equal(t, 8.0, tr.Multiplier)
}

func TestGameNumbers(t *testing.T) {
	cases := map[string]int64{
		"$1.5M/s":     1500000,
		"$ 2.5 k / s": 2500,
		"250K":        250000,
		"12":          12,
		"$3B":         3000000000,
		"1,200":       1200,
	}
	for in, want := range cases {
		got, ok := ParseGameNumber(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseGameNumber("no digits")
	assert.False(t, ok)

	assert.Equal(t, "$1.5M", FormatGameNumber(1500000))
	assert.Equal(t, "$250K", FormatGameNumber(250000))
	assert.Equal(t, "$12", FormatGameNumber(12))
	assert.Equal(t, "$10M", FormatGameNumber(10000000))
}
