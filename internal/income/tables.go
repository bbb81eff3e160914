package income

import (
	"sort"
	"strings"
)

// Mutation is one row of the mutation table.
type Mutation struct {
	Key        string
	Name       string
	Multiplier float64
}

// Trait is one row of the trait table.
type Trait struct {
	Key        string
	Name       string
	Icon       string
	Multiplier float64
}

// NoMutation is the neutral mutation key.
const NoMutation = "none"

var mutations = map[string]Mutation{
	"none":        {Key: "none", Name: "Normal", Multiplier: 1.0},
	"gold":        {Key: "gold", Name: "Gold", Multiplier: 1.25},
	"diamond":     {Key: "diamond", Name: "Diamond", Multiplier: 1.5},
	"bloodmoon":   {Key: "bloodmoon", Name: "Bloodmoon", Multiplier: 2.0},
	"celestial":   {Key: "celestial", Name: "Celestial", Multiplier: 4.0},
	"candy":       {Key: "candy", Name: "Candy", Multiplier: 4.0},
	"lava":        {Key: "lava", Name: "Lava", Multiplier: 6.0},
	"galaxy":      {Key: "galaxy", Name: "Galaxy", Multiplier: 6.0},
	"yin_yang":    {Key: "yin_yang", Name: "Yin Yang", Multiplier: 7.5},
	"radioactive": {Key: "radioactive", Name: "Radioactive", Multiplier: 8.5},
	"rainbow":     {Key: "rainbow", Name: "Rainbow", Multiplier: 10.0},
	"halloween":   {Key: "halloween", Name: "Halloween", Multiplier: 1.0},
}

var traits = map[string]Trait{
	"sleepy":          {Key: "sleepy", Name: "Sleepy", Icon: "💤", Multiplier: -0.5},
	"galactic":        {Key: "galactic", Name: "Galactic", Icon: "🌌", Multiplier: 4.0},
	"bombardiro":      {Key: "bombardiro", Name: "Bombardiro", Icon: "💣", Multiplier: 4.0},
	"shark_fin":       {Key: "shark_fin", Name: "Shark Fin", Icon: "🦈", Multiplier: 4.0},
	"paint":           {Key: "paint", Name: "Paint", Icon: "🎨", Multiplier: 6.0},
	"nyan":            {Key: "nyan", Name: "Nyan", Icon: "🌈", Multiplier: 6.0},
	"fire":            {Key: "fire", Name: "Fire", Icon: "🔥", Multiplier: 6.0},
	"zombie":          {Key: "zombie", Name: "Zombie", Icon: "🧟", Multiplier: 5.0},
	"firework":        {Key: "firework", Name: "Firework", Icon: "🎆", Multiplier: 6.0},
	"rain":            {Key: "rain", Name: "Rain", Icon: "🌧️", Multiplier: 2.5},
	"snowy":           {Key: "snowy", Name: "Snowy", Icon: "❄️", Multiplier: 3.0},
	"cometstruck":     {Key: "cometstruck", Name: "Cometstruck", Icon: "☄️", Multiplier: 3.5},
	"bloodmoon_trait": {Key: "bloodmoon_trait", Name: "Bloodmoon", Icon: "🌙", Multiplier: 2.0},
	"taco":            {Key: "taco", Name: "Taco", Icon: "🌮", Multiplier: 3.0},
	"strawberry":      {Key: "strawberry", Name: "Strawberry", Icon: "🍓", Multiplier: 8.0},
	"hat":             {Key: "hat", Name: "Hat", Icon: "🎩", Multiplier: 1.0},
	"meowl":           {Key: "meowl", Name: "Meowl", Icon: "🦉", Multiplier: 5.0},
	"pumpkin":         {Key: "pumpkin", Name: "Pumpkin", Icon: "🎃", Multiplier: 4.0},
	"rip":             {Key: "rip", Name: "RIP", Icon: "🪦", Multiplier: 5.0},
	"crab":            {Key: "crab", Name: "Crab", Icon: "🦀", Multiplier: 3.0},
}

// labels the vision recognizer emits for modifier icons that are not table keys
var traitAliases = map[string]string{
	"jack_o_lantern": "pumpkin",
	"santa_hat":      "hat",
	"top_hat":        "hat",
	"fireworks":      "firework",
	"crab_claw":      "crab",
	"wet":            "rain",
	"explosive":      "bombardiro",
	"rip_tombstone":  "rip",
	"tombstone":      "rip",
	"owl":            "meowl",
	"shark":          "shark_fin",
	"comet":          "cometstruck",
	"snow":           "snowy",
	"zzz":            "sleepy",
}

var (
	traitKeys    []string
	mutationKeys []string
)

func init() {
	for k := range traits {
		traitKeys = append(traitKeys, k)
	}
	sort.Strings(traitKeys)

	for k := range mutations {
		mutationKeys = append(mutationKeys, k)
	}
	sort.Strings(mutationKeys)
}

// LookupMutation returns the table row for a mutation key.
func LookupMutation(key string) (Mutation, bool) {
	m, ok := mutations[key]
	return m, ok
}

// LookupTrait returns the table row for a trait key.
func LookupTrait(key string) (Trait, bool) {
	t, ok := traits[key]
	return t, ok
}

// TraitKeys returns every trait key in a stable order.
func TraitKeys() []string {
	out := make([]string, len(traitKeys))
	copy(out, traitKeys)
	return out
}

// MutationKeys returns every mutation key in a stable order.
func MutationKeys() []string {
	out := make([]string, len(mutationKeys))
	copy(out, mutationKeys)
	return out
}

// canonicalKey lowercases a label and turns spaces and dashes into underscores.
func canonicalKey(label string) string {
	k := strings.ToLower(strings.TrimSpace(label))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return k
}

// NormalizeMutation maps a free-form label ("Yin Yang", "GOLD", "") to a table
// key. Unknown labels map to "none".
func NormalizeMutation(label string) string {
	k := canonicalKey(label)
	if k == "" || k == "normal" || k == "null" {
		return NoMutation
	}
	if k == "yinyang" {
		k = "yin_yang"
	}
	if _, ok := mutations[k]; ok {
		return k
	}
	return NoMutation
}

// NormalizeTrait maps a modifier label to a trait key. The second result is
// false when the label is not a known trait.
func NormalizeTrait(label string) (string, bool) {
	k := canonicalKey(label)
	if _, ok := traits[k]; ok {
		return k, true
	}
	if alias, ok := traitAliases[k]; ok {
		return alias, true
	}
	return "", false
}

// NormalizeTraits converts recognizer labels into distinct trait keys,
// dropping anything unknown. Order of first appearance is kept.
func NormalizeTraits(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		k, ok := NormalizeTrait(label)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
