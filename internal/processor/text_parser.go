package processor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
)

// ParsedCard is what the text parser recovers from raw OCR text.
type ParsedCard struct {
	Name            string
	Rarity          string
	Mutation        string
	IncomeText      string
	Income          int64
	Cost            int64
	CollectionValue int64
	Confidence      float64
}

// Mutation words as they appear on cards, in scan order.
var mutationKeywords = []string{
	"radioactive", "rainbow", "diamond", "gold", "galaxy", "lava",
	"yin yang", "bloodmoon", "celestial", "candy", "halloween",
}

// Longest first so "brainrot god" wins over "og".
var rarityKeywords = []string{
	"brainrot god", "legendary", "common", "mythic", "secret", "epic", "rare", "og",
}

var rarityPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(rarityKeywords))
	for _, k := range rarityKeywords {
		out[k] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`)
	}
	return out
}()

var (
	incomeRe      = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*([KMBT])\s*/\s*s`)
	plainIncomeRe = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*/\s*s`)
	moneyRe       = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*([KMBT])`)
	perSecondRe   = regexp.MustCompile(`^\s*/\s*s`)
	collectRe     = regexp.MustCompile(`(?i)collect\s*\$\s*(\d+(?:\.\d+)?)\s*([KMBT])?`)
	allDigitsRe   = regexp.MustCompile(`^[\d\s.,]+$`)
)

var titleCaser = cases.Title(language.English)

// ParseCardText extracts card fields from OCR text. It never fails; missing
// fields are left empty and lower the confidence.
func ParseCardText(text string) ParsedCard {
	lines := splitLines(text)
	var card ParsedCard

	card.Mutation, card.Name = findMutation(lines)
	if card.Name == "" {
		for _, l := range lines {
			if isValidName(l) {
				card.Name = cleanName(l)
				break
			}
		}
	}

	card.Rarity = findRarity(lines)

	if m := incomeRe.FindStringSubmatch(text); m != nil {
		card.IncomeText = strings.TrimSpace(m[0])
		card.Income = moneyValue(m[1], m[2])
	} else if m := plainIncomeRe.FindStringSubmatch(text); m != nil {
		card.IncomeText = strings.TrimSpace(m[0])
		card.Income = moneyValue(m[1], "")
	}

	card.Cost = findCost(text)

	if m := collectRe.FindStringSubmatch(text); m != nil {
		card.CollectionValue = moneyValue(m[1], m[2])
	}

	card.Confidence = ParseConfidence(card)
	return card
}

// ParseConfidence weighs which fields were recovered: name 0.4, rarity 0.2,
// mutation 0.1, income 0.2, cost 0.1. A card without a mutation word still
// earns the mutation share once its name was found.
func ParseConfidence(c ParsedCard) float64 {
	score := 0.0
	if c.Name != "" {
		score += 0.4
	}
	if c.Rarity != "" {
		score += 0.2
	}
	if (c.Mutation != "" && c.Mutation != income.NoMutation) || c.Name != "" {
		score += 0.1
	}
	if c.Income > 0 {
		score += 0.2
	}
	if c.Cost > 0 {
		score += 0.1
	}
	return score
}

func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// findMutation returns the mutation key and, when the line right after the
// mutation word is a valid name, that name.
func findMutation(lines []string) (string, string) {
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, m := range mutationKeywords {
			hit := strings.Contains(lower, m) ||
				(len(lower) >= 3 && strings.Contains(m, lower)) ||
				catalog.Similarity(lower, m) > 0.75
			if !hit {
				continue
			}
			name := ""
			if i+1 < len(lines) && isValidName(lines[i+1]) {
				name = cleanName(lines[i+1])
			}
			return income.NormalizeMutation(m), name
		}
	}
	return income.NoMutation, ""
}

func findRarity(lines []string) string {
	for _, line := range lines {
		for _, k := range rarityKeywords {
			if rarityPatterns[k].MatchString(line) {
				if k == "og" {
					return "OG"
				}
				return titleCaser.String(k)
			}
		}
	}
	return ""
}

// findCost returns the first money amount that is neither a per-second
// income nor a "Collect" amount.
func findCost(text string) int64 {
	for _, loc := range moneyRe.FindAllStringSubmatchIndex(text, -1) {
		if perSecondRe.MatchString(text[loc[1]:]) {
			continue
		}
		before := strings.ToLower(text[max(0, loc[0]-10):loc[0]])
		if strings.Contains(before, "collect") {
			continue
		}
		return moneyValue(text[loc[2]:loc[3]], text[loc[4]:loc[5]])
	}
	return 0
}

func isValidName(line string) bool {
	l := strings.TrimSpace(line)
	if n := len([]rune(l)); n < 3 || n > 60 {
		return false
	}
	if strings.Contains(l, "$") || allDigitsRe.MatchString(l) {
		return false
	}

	lower := strings.ToLower(l)
	for _, bad := range []string{"collect", "offline", "cash"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	for _, k := range rarityKeywords {
		if lower == k || rarityPatterns[k].MatchString(l) {
			return false
		}
	}
	for _, m := range mutationKeywords {
		if lower == m {
			return false
		}
	}

	return strings.IndexFunc(l, unicode.IsLetter) >= 0
}

func cleanName(line string) string {
	return strings.Join(strings.Fields(strings.Trim(line, " |_-*•\"'`")), " ")
}

func moneyValue(num, suffix string) int64 {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return int64(f*income.SuffixValue(suffix) + 0.5)
}
