package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCardTextFullCard(t *testing.T) {
	card := ParseCardText("Gold\nTralalero Tralala\nBrainrot God\n$1.5M/s\n$25M\nCollect $300K\n")

	assert.Equal(t, "gold", card.Mutation)
	assert.Equal(t, "Tralalero Tralala", card.Name)
	assert.Equal(t, "Brainrot God", card.Rarity)
	assert.Equal(t, int64(1500000), card.Income)
	assert.Equal(t, "$1.5M/s", card.IncomeText)
	assert.Equal(t, int64(25000000), card.Cost)
	assert.Equal(t, int64(300000), card.CollectionValue)
	assert.InDelta(t, 1.0, card.Confidence, 1e-9)
}

func TestParseCardTextWithoutMutation(t *testing.T) {
	card := ParseCardText("  Noobini Pizzanini \n Common\n$1/s")

	assert.Equal(t, "none", card.Mutation)
	assert.Equal(t, "Noobini Pizzanini", card.Name)
	assert.Equal(t, "Common", card.Rarity)
	assert.Equal(t, int64(1), card.Income)
	assert.Equal(t, int64(0), card.Cost)
	assert.InDelta(t, 0.9, card.Confidence, 1e-9)
}

func TestParseCardTextFuzzyMutation(t *testing.T) {
	card := ParseCardText("Rainbaw\nBombardiro Crocodilo\nMythic\n$ 2.5 k / s")
	assert.Equal(t, "rainbow", card.Mutation)
	assert.Equal(t, "Bombardiro Crocodilo", card.Name)
	assert.Equal(t, int64(2500), card.Income)
}

func TestParseCardTextMultiWordMutationAndOG(t *testing.T) {
	card := ParseCardText("Yin Yang\nStrawberry Elephant\nOG\n$500M/s")
	assert.Equal(t, "yin_yang", card.Mutation)
	assert.Equal(t, "Strawberry Elephant", card.Name)
	assert.Equal(t, "OG", card.Rarity)
}

func TestParseCardTextEmpty(t *testing.T) {
	card := ParseCardText("")
	assert.Equal(t, "none", card.Mutation)
	assert.Empty(t, card.Name)
	assert.Equal(t, 0.0, card.Confidence)
}

func TestIsValidName(t *testing.T) {
	for _, bad := range []string{"$1.5M/s", "12345", "Collect $5", "Legendary", "Gold", "ab", "!!!", "Offline Cash", "Brainrot God"} {
		assert.False(t, isValidName(bad), bad)
	}
	for _, good := range []string{"Tung Tung Tung Sahur", "Golden Goose", "Cappuccino Assassino"} {
		assert.True(t, isValidName(good), good)
	}
}

func TestParseConfidenceWeights(t *testing.T) {
	assert.InDelta(t, 0.2, ParseConfidence(ParsedCard{Rarity: "Epic"}), 1e-9)
	assert.InDelta(t, 0.1, ParseConfidence(ParsedCard{Mutation: "gold"}), 1e-9)
	assert.InDelta(t, 0.5, ParseConfidence(ParsedCard{Name: "X"}), 1e-9)
	assert.InDelta(t, 0.3, ParseConfidence(ParsedCard{Income: 5, Cost: 5}), 1e-9)
}
