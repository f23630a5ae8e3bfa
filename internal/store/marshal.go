package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tierfold/internal/ir"
)

// marshalFeedback converts per-parameter type names to canonical JSON TEXT.
// Uses RFC 8785 canonical JSON so equal feedback is byte-identical.
func marshalFeedback(feedback []string) (string, error) {
	if feedback == nil {
		feedback = []string{}
	}
	data, err := ir.MarshalCanonical(feedback)
	if err != nil {
		return "", fmt.Errorf("marshal feedback: %w", err)
	}
	return string(data), nil
}

// unmarshalFeedback parses the feedback column. An empty array decodes to
// an empty, non-nil slice.
func unmarshalFeedback(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
