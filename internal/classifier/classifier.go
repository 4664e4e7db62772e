// Package classifier scores ad-hoc provider rules into template candidates.
package classifier

import (
	"strings"

	"rulegate/internal/models"
	"rulegate/internal/provider"
)

const (
	// MinConfidence is the floor below which a rule yields no candidate.
	MinConfidence = 0.5
	// AcceptConfidence is the threshold at which callers may auto-create a
	// template from a candidate. Candidates between MinConfidence and this
	// value are reported but never auto-created.
	AcceptConfidence = 0.7
)

// Candidate is a proposed template derived from an existing rule.
type Candidate struct {
	SuggestedName       string
	SuggestedFriendlyID string
	Category            string
	Confidence          float64
	Expression          string
	Action              models.RuleAction
	Description         string
}

// bucket is one independently triggerable scoring rule. Buckets are
// evaluated in order and their weights accumulate.
type bucket struct {
	category string
	weight   float64
	terms    []string
}

func (b bucket) matches(expr string) bool {
	for _, term := range b.terms {
		if strings.Contains(expr, term) {
			return true
		}
	}
	return false
}

var buckets = []bucket{
	{
		category: "SQL Injection",
		weight:   0.75,
		terms:    []string{"union select", "select ", "' or ", "drop table", "information_schema", "sqli", "sql"},
	},
	{
		category: "XSS",
		weight:   0.75,
		terms:    []string{"<script", "script>", "javascript:", "onerror=", "onload=", "xss"},
	},
	{
		category: "Path Traversal",
		weight:   0.75,
		terms:    []string{"../", "..\\", "%2e%2e", "etc/passwd", "traversal"},
	},
	{
		category: "Rate Limiting",
		weight:   0.65,
		terms:    []string{"rate", "threshold", "requests per"},
	},
	{
		category: "Bot Management",
		weight:   0.65,
		terms:    []string{"bot", "crawler", "spider", "cf.client.bot", "user_agent"},
	},
	{
		category: "Geo Blocking",
		weight:   0.7,
		terms:    []string{"ip.geoip", "geoip", "country"},
	},
}

// genericPrefixes are stripped from suggested names: they carry no signal
// and produce duplicate-looking template names.
var genericPrefixes = []string{"rule", "security", "firewall", "waf", "custom"}

// Classify scores a raw provider rule against the existing template set and
// returns a candidate, or nil when the rule is below confidence or a
// duplicate of an existing template.
func Classify(rule provider.Rule, existing []models.RuleTemplate) *Candidate {
	expr := strings.TrimSpace(rule.Expression)
	if expr == "" {
		return nil
	}
	for _, t := range existing {
		if t.Expression == expr {
			return nil
		}
	}

	lowered := strings.ToLower(expr)
	confidence := 0.0
	category := ""
	for _, b := range buckets {
		if !b.matches(lowered) {
			continue
		}
		confidence += b.weight
		if category == "" {
			category = b.category
		}
	}
	if confidence == 0 && (rule.Action == models.ActionBlock || rule.Action == models.ActionChallenge) {
		confidence = MinConfidence
		category = "General Security"
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < MinConfidence {
		return nil
	}

	name := suggestName(rule.Description, category)
	for _, t := range existing {
		if nameOverlaps(name, t.Name) {
			return nil
		}
	}

	return &Candidate{
		SuggestedName:       name,
		SuggestedFriendlyID: models.NextFriendlyID(existing),
		Category:            category,
		Confidence:          confidence,
		Expression:          expr,
		Action:              rule.Action,
		Description:         strings.TrimSpace(rule.Description),
	}
}

// suggestName derives a title-cased template name from the rule description,
// falling back to the matched category.
func suggestName(description, category string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(description)))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,:;()[]")
		if w == "" || isGenericPrefix(w) {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 6 {
			break
		}
	}
	if len(kept) == 0 {
		return category
	}
	for i, w := range kept {
		kept[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(kept, " ")
}

func isGenericPrefix(word string) bool {
	for _, p := range genericPrefixes {
		if word == p {
			return true
		}
	}
	return false
}

// nameOverlaps reports whether one name contains the other, ignoring case.
func nameOverlaps(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
