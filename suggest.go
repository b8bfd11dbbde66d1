package stepdiag

import (
	"sort"

	edlib "github.com/hbollon/go-edlib"
)

// suggestExpressions ranks candidate expressions by Jaro-Winkler similarity
// to an unmatched step's text, best first, keeping entries at or above
// threshold, capped at limit. Candidates are the canonical expressions the
// step was actually tested against.
func suggestExpressions(text string, candidates []string, threshold float64, limit int) []string {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	type scored struct {
		expression string
		score      float64
	}
	ranked := make([]scored, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		similarity, err := edlib.StringsSimilarity(text, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(similarity) < threshold {
			continue
		}
		ranked = append(ranked, scored{expression: candidate, score: float64(similarity)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	suggestions := make([]string, len(ranked))
	for i, s := range ranked {
		suggestions[i] = s.expression
	}
	return suggestions
}

// canonicalExpressions lists the canonical string of every definition, in
// registration order, for suggestion ranking.
func canonicalExpressions(definitions []*StepDefinition) []string {
	expressions := make([]string, len(definitions))
	for i, definition := range definitions {
		expressions[i] = definition.Expression.CanonicalString()
	}
	return expressions
}
