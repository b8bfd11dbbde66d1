package feeders

import (
	"path/filepath"
	"testing"
)

func TestJSONFeeder_Feed(t *testing.T) {
	path := writeTempFile(t, "settings.json", `{
	"features": ["features/**/*.feature"],
	"suggestions": {"threshold": 0.8, "limit": 2}
}`)

	var settings toolSettings
	if err := NewJSONFeeder(path).Feed(&settings); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(settings.Features) != 1 || settings.Features[0] != "features/**/*.feature" {
		t.Errorf("Expected one feature pattern, got %v", settings.Features)
	}
	if settings.Suggestions.Threshold != 0.8 {
		t.Errorf("Expected threshold 0.8, got %v", settings.Suggestions.Threshold)
	}
}

func TestJSONFeeder_FeedInvalidJSON(t *testing.T) {
	path := writeTempFile(t, "broken.json", `{"features": [`)

	var settings toolSettings
	if err := NewJSONFeeder(path).Feed(&settings); err == nil {
		t.Fatal("Expected an error for invalid JSON")
	}
}

func TestJSONFeeder_FeedKey(t *testing.T) {
	path := writeTempFile(t, "package.json", `{
	"name": "shop",
	"version": "2.1.0",
	"stepdiag": {
		"features": ["e2e/**/*.feature"],
		"suggestions": {"limit": 5}
	}
}`)

	var settings toolSettings
	if err := NewJSONFeeder(path).FeedKey("stepdiag", &settings); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(settings.Features) != 1 || settings.Features[0] != "e2e/**/*.feature" {
		t.Errorf("Expected section features, got %v", settings.Features)
	}
	if settings.Suggestions.Limit != 5 {
		t.Errorf("Expected limit 5, got %d", settings.Suggestions.Limit)
	}
}

func TestJSONFeeder_FeedKeyMissingKey(t *testing.T) {
	path := writeTempFile(t, "package.json", `{"name": "shop"}`)

	var settings toolSettings
	if err := NewJSONFeeder(path).FeedKey("stepdiag", &settings); err != nil {
		t.Fatalf("Expected no error for a missing key, got %v", err)
	}
	if settings.Features != nil {
		t.Errorf("Expected target untouched, got %v", settings.Features)
	}
}

func TestJSONFeeder_FeedKeyMissingFile(t *testing.T) {
	var settings toolSettings
	if err := NewJSONFeeder(filepath.Join(t.TempDir(), "absent.json")).FeedKey("stepdiag", &settings); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
