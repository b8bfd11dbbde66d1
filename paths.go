package stepdiag

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// FeatureExtension is the canonical extension of scenario-language files.
	// Discovery results with any other extension are skipped.
	FeatureExtension = ".feature"

	filepathPlaceholder = "[filepath]"
	filepartPlaceholder = "[filepart]"
)

// resolveFeatureFiles expands the configured feature globs below root and
// returns the matching regular files, de-duplicated and sorted.
func resolveFeatureFiles(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, ErrNoFeaturePatterns
	}
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, pattern)
		}
		matches, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("resolving feature pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files, nil
}

// featuresRoot returns the deepest directory containing every discovered
// feature file. Step-definition placeholders resolve feature paths relative to
// this root, so a project keeping features under features/ gets placeholder
// values without that prefix.
func featuresRoot(projectRoot string, featurePaths []string) string {
	if len(featurePaths) == 0 {
		return projectRoot
	}
	root := filepath.Dir(featurePaths[0])
	for _, featurePath := range featurePaths[1:] {
		root = commonDir(root, filepath.Dir(featurePath))
	}
	return root
}

func commonDir(a, b string) string {
	if a == b {
		return a
	}
	separator := string(filepath.Separator)
	aParts := strings.Split(filepath.Clean(a), separator)
	bParts := strings.Split(filepath.Clean(b), separator)
	shared := 0
	for shared < len(aParts) && shared < len(bParts) && aParts[shared] == bParts[shared] {
		shared++
	}
	joined := strings.Join(aParts[:shared], separator)
	if joined == "" {
		return separator
	}
	return joined
}

// stepDefinitionPatterns expands the configured step-definition patterns for
// one feature file. [filepath] becomes the feature's extensionless path
// relative to root; [filepart] yields one pattern per ancestor of that path,
// deepest first, ending with the features root itself. Patterns without
// placeholders pass through unchanged.
func stepDefinitionPatterns(patterns []string, root, featurePath string) ([]string, error) {
	rel, err := filepath.Rel(root, featurePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: feature file %q is outside %q", ErrProjectRootInvalid, featurePath, root)
	}
	replacement := escapeGlobMeta(strings.TrimSuffix(filepath.ToSlash(rel), FeatureExtension))

	var expanded []string
	for _, pattern := range patterns {
		switch {
		case strings.Contains(pattern, filepathPlaceholder):
			expanded = append(expanded, strings.ReplaceAll(pattern, filepathPlaceholder, replacement))
		case strings.Contains(pattern, filepartPlaceholder):
			for _, part := range ancestorParts(replacement) {
				expanded = append(expanded, path.Clean(strings.ReplaceAll(pattern, filepartPlaceholder, part)))
			}
		default:
			expanded = append(expanded, pattern)
		}
	}
	return expanded, nil
}

// ancestorParts lists the extensionless relative path followed by each of its
// ancestor directories, deepest first, ending with ".".
func ancestorParts(rel string) []string {
	parts := []string{rel}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		parts = append(parts, dir)
	}
	return append(parts, ".")
}

// escapeGlobMeta neutralizes glob metacharacters in a literal path segment so
// placeholder substitution cannot change a pattern's structure.
func escapeGlobMeta(segment string) string {
	var escaped strings.Builder
	for _, r := range segment {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			escaped.WriteByte('\\')
		}
		escaped.WriteRune(r)
	}
	return escaped.String()
}

// resolveStepDefinitionPaths expands step-definition patterns below root into
// concrete source files, de-duplicated and sorted.
func resolveStepDefinitionPaths(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, pattern)
		}
		matches, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("resolving step-definition pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			absolute, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("resolving step-definition path %q: %w", match, err)
			}
			if seen[absolute] {
				continue
			}
			seen[absolute] = true
			paths = append(paths, absolute)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// projectRelative renders a path relative to root for display; paths outside
// root are returned unchanged. Either way the result uses forward slashes.
func projectRelative(root, absolute string) string {
	rel, err := filepath.Rel(root, absolute)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(absolute)
	}
	return filepath.ToSlash(rel)
}
