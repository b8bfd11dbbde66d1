package stepdiag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-sourcemap/sourcemap"
)

// sandboxGlobal is the object the sandbox installs into the runtime before a
// bundle executes. The shim module re-exports its members so step-definition
// sources can import the usual cucumber registration API.
const sandboxGlobal = "__stepdiag"

// frameworkImportFilter matches the module specifiers step-definition sources
// use to import the registration API. All of them resolve to the shim.
const frameworkImportFilter = `^(@badeball/cypress-cucumber-preprocessor(/.+)?|@cucumber/cucumber|stepdiag)$`

const shimNamespace = "stepdiag-shim"

// bundleName is the synthetic file name the bundle carries inside the
// JavaScript runtime; registration positions are captured against it and then
// translated through the source map.
const bundleName = "steps.bundle.js"

const shimSource = `
const api = globalThis.` + sandboxGlobal + `;
export const Given = api.defineStep;
export const When = api.defineStep;
export const Then = api.defineStep;
export const And = api.defineStep;
export const But = api.defineStep;
export const Step = api.defineStep;
export const defineStep = api.defineStep;
export const defineParameterType = api.defineParameterType;
export const Before = api.hook;
export const After = api.hook;
export const BeforeEach = api.hook;
export const AfterEach = api.hook;
export const BeforeAll = api.hook;
export const AfterAll = api.hook;
export const BeforeStep = api.hook;
export const AfterStep = api.hook;
export const attach = api.attach;
export const setWorldConstructor = api.configure;
export const setDefaultTimeout = api.configure;
export const setDefinitionFunctionWrapper = api.configure;
export const DataTable = api.DataTable;
export const World = api.World;
export const Status = api.Status;
export default api;
`

// StepBundle is one executable unit compiled from a feature file's resolved
// step-definition files: a pre-compiled goja program plus the source map used
// to translate registration positions back into the original files. A bundle
// is immutable and may be executed by any number of sandboxes.
type StepBundle struct {
	Paths []string
	Name  string

	root      string
	program   *goja.Program
	sourceMap *sourcemap.Consumer
}

// MapPosition translates a position inside the compiled bundle to the
// original step-definition source. When the source map cannot resolve it the
// bundle coordinates are kept, so a definition still carries a stable,
// structurally comparable position.
func (b *StepBundle) MapPosition(line, column int) Position {
	if b.sourceMap != nil {
		source, _, origLine, origColumn, ok := b.sourceMap.Source(line, column)
		if ok && source != "" {
			return Position{Source: b.normalizeSource(source), Line: origLine, Column: origColumn}
		}
	}
	return Position{Source: b.Name, Line: line, Column: column}
}

// normalizeSource renders a source-map source path relative to the project
// root, stripping any esbuild namespace prefix.
func (b *StepBundle) normalizeSource(source string) string {
	if idx := strings.Index(source, ":"); idx > 1 && !strings.Contains(source[:idx], "/") {
		source = source[idx+1:]
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(b.root, filepath.FromSlash(source))
	}
	return projectRelative(b.root, source)
}

// CompileError carries the structured esbuild messages produced when bundling
// step definitions fails.
type CompileError struct {
	Messages []api.Message
}

func (e *CompileError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if msg.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
		} else {
			texts = append(texts, msg.Text)
		}
	}
	return fmt.Sprintf("%v: %s", ErrStepDefinitionsCompile, strings.Join(texts, "; "))
}

func (e *CompileError) Unwrap() error {
	return ErrStepDefinitionsCompile
}

// BundleStepDefinitions compiles the given step-definition files into one
// executable unit. A temporary entry module importing every path is written
// under the system temp directory and removed unconditionally, whether or not
// compilation succeeds, so repeated runs never accumulate orphaned files.
func BundleStepDefinitions(projectRoot string, paths []string) (*StepBundle, error) {
	entry, err := writeBundleEntry(paths)
	if err != nil {
		return nil, err
	}
	defer os.Remove(entry)

	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{entry},
		Bundle:        true,
		Write:         false,
		Outfile:       bundleName,
		AbsWorkingDir: projectRoot,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformNode,
		Sourcemap:     api.SourceMapExternal,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{frameworkShimPlugin()},
	})
	if len(result.Errors) > 0 {
		return nil, &CompileError{Messages: result.Errors}
	}

	var script, mapData []byte
	for _, file := range result.OutputFiles {
		switch {
		case strings.HasSuffix(file.Path, ".js.map"):
			mapData = file.Contents
		case strings.HasSuffix(file.Path, ".js"):
			script = file.Contents
		}
	}

	program, err := goja.Compile(bundleName, string(script), false)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling bundle: %v", ErrStepDefinitionsCompile, err)
	}

	bundle := &StepBundle{Paths: paths, Name: bundleName, root: projectRoot, program: program}
	if len(mapData) > 0 {
		consumer, err := sourcemap.Parse(bundleName+".map", mapData)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing source map: %v", ErrStepDefinitionsCompile, err)
		}
		bundle.sourceMap = consumer
	}
	return bundle, nil
}

// writeBundleEntry generates the temporary entry module that imports every
// resolved step-definition file. The caller removes it.
func writeBundleEntry(paths []string) (string, error) {
	var entry strings.Builder
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolving step definition path %q: %w", path, err)
		}
		fmt.Fprintf(&entry, "import %s;\n", strconv.Quote(filepath.ToSlash(abs)))
	}
	file, err := os.CreateTemp("", "stepdiag-entry-*.mjs")
	if err != nil {
		return "", fmt.Errorf("creating bundle entry: %w", err)
	}
	if _, err := file.WriteString(entry.String()); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("writing bundle entry: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("closing bundle entry: %w", err)
	}
	return file.Name(), nil
}

// frameworkShimPlugin resolves cucumber framework imports to a virtual module
// backed by the sandbox globals, so step-definition sources bundle without
// any node_modules installation.
func frameworkShimPlugin() api.Plugin {
	return api.Plugin{
		Name: "stepdiag-framework-shim",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: frameworkImportFilter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: shimNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: shimNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := shimSource
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// BundleCache re-uses compiled bundles across feature files that resolve the
// same step-definition set. The key folds every path with its size and
// modification time, so edits invalidate stale entries; watch mode relies on
// that to avoid rebundling unchanged step sets.
type BundleCache struct {
	mu      sync.Mutex
	entries map[uint64]*StepBundle
}

// NewBundleCache creates an empty cache.
func NewBundleCache() *BundleCache {
	return &BundleCache{entries: make(map[uint64]*StepBundle)}
}

// Bundle returns a cached bundle for paths or compiles and stores a new one.
func (c *BundleCache) Bundle(projectRoot string, paths []string) (*StepBundle, error) {
	key, err := c.key(paths)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	bundle, err := BundleStepDefinitions(projectRoot, paths)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = bundle
	c.mu.Unlock()
	return bundle, nil
}

// Len reports the number of cached bundles.
func (c *BundleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every cached bundle. Watch mode purges before each re-run so
// entries for edited or deleted step sets do not accumulate.
func (c *BundleCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*StepBundle)
}

func (c *BundleCache) key(paths []string) (uint64, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	digest := xxhash.New()
	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("stat step definition %q: %w", path, err)
		}
		fmt.Fprintf(digest, "%s|%d|%d\n", path, info.Size(), info.ModTime().UnixNano())
	}
	return digest.Sum64(), nil
}
