package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one reference item. Entries are read-only once loaded.
type Entry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Rarity     string `json:"rarity"`
	BaseIncome int64  `json:"baseIncome"`
	Cost       int64  `json:"cost"`
	Image      string `json:"image,omitempty"`
}

// LoadFile reads a JSON array of entries. Both a bare array and an object
// with a "brainrots" or "items" array are accepted.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog JSON.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		return validate(entries)
	}

	var wrapped struct {
		Brainrots []Entry `json:"brainrots"`
		Items     []Entry `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(wrapped.Brainrots) > 0 {
		return validate(wrapped.Brainrots)
	}
	return validate(wrapped.Items)
}

func validate(entries []Entry) ([]Entry, error) {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d is missing id or name", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate catalog id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return entries, nil
}

// ByID indexes entries by id.
func ByID(entries []Entry) map[string]Entry {
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		out[e.ID] = e
	}
	return out
}

// Names returns entry names in catalog order, at most limit of them (0 = all).
func Names(entries []Entry, limit int) []string {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for _, e := range entries[:n] {
		out = append(out, e.Name)
	}
	return out
}
