package stepdiag

import (
	"errors"
)

// Engine errors
var (
	// Registry errors
	ErrNoActiveRegistry     = errors.New("no active step registry installed")
	ErrRegistryFinalized    = errors.New("step registry already finalized")
	ErrRegistryNotFinalized = errors.New("step registry not finalized")

	// Expression errors
	ErrExpressionCompile       = errors.New("failed to compile step expression")
	ErrUnsupportedPattern      = errors.New("step pattern must be a string or a RegExp")
	ErrParameterTypeName       = errors.New("parameter type requires a non-empty name")
	ErrParameterTypeRegexp     = errors.New("parameter type requires at least one regexp")
	ErrParameterTypeDefinition = errors.New("failed to define parameter type")

	// Scenario compiler errors
	ErrFeatureParseFailed = errors.New("failed to parse feature file")
	ErrDocumentMissing    = errors.New("parser produced no gherkin document")

	// Classification invariant errors. These indicate a broken contract
	// between the compiler output and the engine and always abort the run.
	ErrPickleStepMissingAstNode = errors.New("pickle step references no AST nodes")
	ErrAstNodeNotFound          = errors.New("AST node not found for id")
	ErrAstNodeNoLocation        = errors.New("AST node carries no source location")
	ErrUsageEntryMissing        = errors.New("matched definition missing from usage ledger")

	// Loader errors
	ErrStepDefinitionsCompile   = errors.New("failed to bundle step definitions")
	ErrStepDefinitionsExecution = errors.New("step definitions threw during harvesting")

	// Configuration errors
	ErrConfigLoadFailed   = errors.New("failed to load configuration")
	ErrProjectRootInvalid = errors.New("project root is not a directory")
	ErrNoFeaturePatterns  = errors.New("no feature patterns configured")

	// Report errors
	ErrProblemsFound = errors.New("diagnostics found unmatched or ambiguous steps")

	// Server errors
	ErrNoDiagnosticsYet = errors.New("no diagnostics produced yet")

	// Watcher errors
	ErrWatcherStopped = errors.New("watcher already stopped")
)
