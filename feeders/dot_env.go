package feeders

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// DotEnvFeeder reads a .env file and feeds env-tagged struct fields from its
// key/value pairs, resolving names the same way PrefixEnvFeeder resolves
// process variables. Parsed values stay local, nothing is exported to the
// process environment.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a DotEnvFeeder for the given file and variable prefix.
func NewDotEnvFeeder(path, prefix string) DotEnvFeeder {
	return DotEnvFeeder{Path: path, Prefix: strings.ToUpper(prefix)}
}

// Feed populates the provided pointer-to-struct from the .env file.
func (f DotEnvFeeder) Feed(structure interface{}) error {
	if f.Prefix == "" {
		return ErrEnvEmptyPrefix
	}
	value := reflect.ValueOf(structure)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return wrapEnvStructureError(structure)
	}
	vars, err := parseDotEnvFile(f.Path)
	if err != nil {
		return err
	}
	return feedStructEnv(value.Elem(), f.Prefix, func(name string) (string, bool) {
		raw, ok := vars[name]
		return raw, ok
	})
}

func parseDotEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening .env file: %w", err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, found := strings.Cut(text, "=")
		if !found {
			return nil, fmt.Errorf("%w: line %d", ErrDotEnvInvalidLine, line)
		}
		vars[strings.TrimSpace(key)] = unquoteDotEnvValue(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}
	return vars, nil
}

// unquoteDotEnvValue strips one matching pair of single or double quotes.
func unquoteDotEnvValue(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
