package feeders

import (
	"encoding/json"
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
)

// JSONFeeder is a feeder that reads JSON files.
type JSONFeeder struct {
	feeder.Json
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified file.
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{feeder.Json{Path: filePath}}
}

// FeedKey extracts a single top-level section. This is how settings embedded
// in a project manifest (a "stepdiag" key in package.json) are read.
func (j JSONFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]interface{}
	if err := j.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal section '%s': %w", key, err)
	}
	if err = json.Unmarshal(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal section '%s': %w", key, err)
	}
	return nil
}
