// Package analyzer compares rule expressions for propagation conflicts.
// The comparison is syntactic token overlap, not semantic equivalence:
// two expressions that filter the same traffic through different fields
// will not be flagged, and high overlap does not prove equal behaviour.
package analyzer

import (
	"regexp"
	"strings"

	"rulegate/internal/models"
	"rulegate/internal/provider"
)

// SimilarThreshold is the Jaccard score above which two distinct
// expressions are treated as a similar conflict.
const SimilarThreshold = 0.8

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Similarity returns the Jaccard index of the two expressions' lowercased
// word-token sets, in [0, 1]. It is symmetric, and 1 for any non-empty
// expression compared with itself.
func Similarity(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(expr string) map[string]struct{} {
	tokens := tokenPattern.FindAllString(strings.ToLower(expr), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Compare classifies the relation between a template expression and an
// existing rule expression. ok is false when there is no conflict.
func Compare(templateExpr, ruleExpr string) (models.ConflictType, float64, bool) {
	if strings.TrimSpace(templateExpr) == "" || strings.TrimSpace(ruleExpr) == "" {
		return "", 0, false
	}
	if templateExpr == ruleExpr {
		return models.ConflictIdentical, 1, true
	}
	score := Similarity(templateExpr, ruleExpr)
	if score > SimilarThreshold {
		return models.ConflictSimilar, score, true
	}
	return "", score, false
}

// DetectConflicts checks every zone rule against the template expression
// and returns the collisions found.
func DetectConflicts(zoneID string, rules []provider.Rule, templateExpr string) []models.Conflict {
	var out []models.Conflict
	for _, rule := range rules {
		kind, confidence, ok := Compare(templateExpr, rule.Expression)
		if !ok {
			continue
		}
		out = append(out, models.Conflict{
			ZoneID:         zoneID,
			ProviderRuleID: rule.ID,
			Expression:     rule.Expression,
			Action:         rule.Action,
			Description:    rule.Description,
			ConflictType:   kind,
			Confidence:     confidence,
		})
	}
	return out
}
