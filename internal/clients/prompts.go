package clients

import (
	"fmt"
	"strings"
)

const detectInstruction = `Find every item card in this game screenshot.
A card is a framed panel showing a character, its name, rarity and income per second.

Return ONLY JSON:
{
  "detected_count": <number of cards>,
  "cards": [
    {"id": 1, "bounding_box": {"x": <px>, "y": <px>, "width": <px>, "height": <px>}, "confidence": <0-1>}
  ],
  "layout": "horizontal" | "vertical" | "grid" | "single"
}

Order cards left to right, then top to bottom. Boxes must enclose the whole card, text included.`

const cardFields = `"name": "<exact name as printed>",
    "rarity": "<Common|Rare|Epic|Legendary|Mythic|Secret|OG|Brainrot God>",
    "mutation": "<none|gold|diamond|bloodmoon|celestial|candy|lava|galaxy|yin_yang|radioactive|rainbow|halloween>",
    "income_per_second": "<as printed, e.g. $1.5M/s>",
    "income_value": <number>,
    "modifier_icons": ["<fire|taco|strawberry|nyan|paint|zombie|firework|rain|snowy|cometstruck|galactic|bombardiro|shark_fin|sleepy|hat|meowl|pumpkin|rip|crab>"],
    "confidence": <0-1>`

func knownNamesHint(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("\nNames you are likely to see: %s.\n", strings.Join(names, ", "))
}

func readCardInstruction(knownNames []string) string {
	return `Read this single item card.

Mutation shows as a colored word above the name or as the card's color effect. Modifier icons are
small symbols near the character; list every one you see.
` + knownNamesHint(knownNames) + `
Return ONLY JSON:
{
    ` + cardFields + `,
    "notes": "<anything unclear>"
}`
}

func readFloorInstruction(knownNames []string) string {
	return `Read every item card in this screenshot.

Positions are 1-based, counted left to right, then top to bottom.
` + knownNamesHint(knownNames) + `
Return ONLY JSON:
{
  "brainrots": [
    {
    "position": <n>,
    ` + cardFields + `
    }
  ],
  "layout": "horizontal" | "vertical" | "grid" | "single",
  "overall_confidence": <0-1>
}`
}
