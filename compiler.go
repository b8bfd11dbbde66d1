package stepdiag

import (
	"bytes"
	"fmt"
	"os"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// CompiledFeature is one feature file parsed into its structured document and
// the flat list of pickles, with outline expansion already applied.
type CompiledFeature struct {
	Path     string
	Document *messages.GherkinDocument
	Pickles  []*messages.Pickle
}

// CompileFeature parses feature source text into a document and pickle list.
// Each invocation uses its own deterministic id generator, so node ids are
// stable for a given file content regardless of processing order.
func CompileFeature(path string, source []byte) (*CompiledFeature, error) {
	newID := (&messages.Incrementing{}).NewId
	document, err := gherkin.ParseGherkinDocument(bytes.NewReader(source), newID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFeatureParseFailed, path, err)
	}
	if document == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentMissing, path)
	}
	document.Uri = path
	pickles := gherkin.Pickles(*document, path, newID)
	return &CompiledFeature{Path: path, Document: document, Pickles: pickles}, nil
}

// LoadFeature reads and compiles the feature file at path.
func LoadFeature(path string) (*CompiledFeature, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature file: %w", err)
	}
	return CompileFeature(path, source)
}
