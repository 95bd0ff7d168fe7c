package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalStatements converts statements to JSON TEXT for storage.
// HTML escaping is disabled so SQL operators such as < and > stay readable
// in the database.
func marshalStatements(statements []string) (string, error) {
	if statements == nil {
		statements = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(statements); err != nil {
		return "", fmt.Errorf("marshal statements: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalStatements parses JSON TEXT back into statements.
func unmarshalStatements(data string) ([]string, error) {
	var statements []string
	if err := json.Unmarshal([]byte(data), &statements); err != nil {
		return nil, fmt.Errorf("unmarshal statements: %w", err)
	}
	return statements, nil
}
