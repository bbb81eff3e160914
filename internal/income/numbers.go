package income

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var suffixes = []struct {
	suffix string
	value  float64
}{
	{"T", 1e12},
	{"B", 1e9},
	{"M", 1e6},
	{"K", 1e3},
}

var gameNumberRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([KMBT])?`)

// ParseGameNumber reads values like "$1.5M/s", "250K", "12" into an integer.
func ParseGameNumber(s string) (int64, bool) {
	m := gameNumberRe.FindStringSubmatch(strings.ReplaceAll(s, ",", ""))
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(num * SuffixValue(m[2]))), true
}

// SuffixValue returns the multiplier for a K/M/B/T suffix, 1 for anything else.
func SuffixValue(suffix string) float64 {
	s := strings.ToUpper(suffix)
	for _, sv := range suffixes {
		if sv.suffix == s {
			return sv.value
		}
	}
	return 1
}

// FormatGameNumber renders n the way cards show it: "$1.5M", "$250K", "$12".
func FormatGameNumber(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	out := strconv.FormatInt(n, 10)
	for _, sv := range suffixes {
		if float64(n) >= sv.value {
			v := float64(n) / sv.value
			out = strconv.FormatFloat(math.Floor(v*10)/10, 'f', -1, 64) + sv.suffix
			break
		}
	}
	if neg {
		return "-$" + out
	}
	return "$" + out
}
