package lineage

import "strings"

// Matcher infers column links between an upstream and a downstream column
// list. [MatchColumns] is the default.
type Matcher func(source, target []Column) []ColumnLink

// matchRule reports whether two lower-cased column names are related.
type matchRule struct {
	name       string
	confidence float64
	match      func(a, b string) bool
}

// matchRules are evaluated in order; the first rule that fires sets the
// confidence of the pair.
var matchRules = []matchRule{
	{"equal", ConfidenceHeuristic, func(a, b string) bool { return a == b }},
	{"contains", ConfidenceHeuristic, func(a, b string) bool {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}},
	{"both_id", ConfidenceHeuristic, func(a, b string) bool {
		return strings.Contains(a, "_id") && strings.Contains(b, "_id")
	}},
	{"both_date", ConfidenceHeuristic, func(a, b string) bool {
		return strings.Contains(a, "date") && strings.Contains(b, "date")
	}},
}

// MatchColumns returns candidate column links between source and target.
//
// Every (source, target) pair is compared case-insensitively in declaration
// order, source first. A pair is a candidate when the names are equal, one
// contains the other, both contain "_id", or both contain "date". Each
// candidate is emitted with [ConfidenceHeuristic]; a column may appear in any
// number of links.
//
// If no pair qualifies and both lists are non-empty, a single link between the
// first column of each list is returned with [ConfidenceFallback]. If either
// list is empty the result is nil.
//
// MatchColumns is pure and returns identical output for identical input.
func MatchColumns(source, target []Column) []ColumnLink {
	if len(source) == 0 || len(target) == 0 {
		return nil
	}

	lowerTarget := make([]string, len(target))
	for i, c := range target {
		lowerTarget[i] = strings.ToLower(c.Name)
	}

	var links []ColumnLink
	for _, sc := range source {
		a := strings.ToLower(sc.Name)
		for j, tc := range target {
			if conf, ok := scorePair(a, lowerTarget[j]); ok {
				links = append(links, ColumnLink{
					SourceColumn: sc.Name,
					TargetColumn: tc.Name,
					Confidence:   conf,
				})
			}
		}
	}

	if len(links) == 0 {
		links = []ColumnLink{{
			SourceColumn: source[0].Name,
			TargetColumn: target[0].Name,
			Confidence:   ConfidenceFallback,
		}}
	}
	return links
}

func scorePair(a, b string) (float64, bool) {
	for _, r := range matchRules {
		if r.match(a, b) {
			return r.confidence, true
		}
	}
	return 0, false
}
