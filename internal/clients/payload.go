package clients

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// UnwrapJSON pulls the JSON object out of model text that may be wrapped in
// code fences or surrounded by narrative. It returns an error when no valid
// object can be found.
func UnwrapJSON(text string) ([]byte, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return []byte(m[1]), nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response (%d chars)", len(text))
	}

	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("response contains invalid JSON")
	}
	return candidate, nil
}

// decodeWrapped unwraps and decodes model text into v.
func decodeWrapped(text string, v interface{}) error {
	raw, err := UnwrapJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
