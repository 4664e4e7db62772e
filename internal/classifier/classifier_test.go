package classifier

import (
	"testing"

	"rulegate/internal/models"
	"rulegate/internal/provider"
)

func TestClassifySQLInjection(t *testing.T) {
	rule := provider.Rule{
		Expression:  `http.request.uri.query contains "union select"`,
		Action:      models.ActionBlock,
		Description: "block sql probes on search endpoint",
	}
	cand := Classify(rule, nil)
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if cand.Category != "SQL Injection" {
		t.Fatalf("category %q", cand.Category)
	}
	if cand.Confidence < AcceptConfidence {
		t.Fatalf("confidence %f below acceptance", cand.Confidence)
	}
	if cand.SuggestedFriendlyID != "R001" {
		t.Fatalf("friendly id %q", cand.SuggestedFriendlyID)
	}
}

func TestClassifyFallbackForUnmatchedBlock(t *testing.T) {
	rule := provider.Rule{
		Expression: `http.host eq "internal.example.com"`,
		Action:     models.ActionBlock,
	}
	cand := Classify(rule, nil)
	if cand == nil {
		t.Fatal("expected fallback candidate for block action")
	}
	if cand.Confidence != MinConfidence {
		t.Fatalf("confidence %f, want fallback %f", cand.Confidence, MinConfidence)
	}
	if cand.Confidence >= AcceptConfidence {
		t.Fatal("fallback candidate must not reach acceptance threshold")
	}
}

func TestClassifyUnmatchedLogActionRejected(t *testing.T) {
	rule := provider.Rule{
		Expression: `http.host eq "internal.example.com"`,
		Action:     models.ActionLog,
	}
	if cand := Classify(rule, nil); cand != nil {
		t.Fatalf("expected nil, got %+v", cand)
	}
}

func TestClassifyDedupByExpression(t *testing.T) {
	expr := `http.request.uri.query contains "union select"`
	existing := []models.RuleTemplate{{Name: "Existing", Expression: expr}}
	rule := provider.Rule{Expression: expr, Action: models.ActionBlock}
	if cand := Classify(rule, existing); cand != nil {
		t.Fatalf("identical expression must dedup, got %+v", cand)
	}
}

func TestClassifyDedupByName(t *testing.T) {
	existing := []models.RuleTemplate{{
		Name:       "Sql Probes On Search Endpoint",
		Expression: `something else entirely`,
	}}
	rule := provider.Rule{
		Expression:  `http.request.uri.query contains "union select"`,
		Action:      models.ActionBlock,
		Description: "block sql probes on search endpoint",
	}
	if cand := Classify(rule, existing); cand != nil {
		t.Fatalf("name overlap must dedup, got %+v", cand)
	}
}

func TestSuggestNameStripsGenericPrefixes(t *testing.T) {
	rule := provider.Rule{
		Expression:  `ip.geoip.country in {"CN"}`,
		Action:      models.ActionBlock,
		Description: "firewall rule: block sanctioned country traffic",
	}
	cand := Classify(rule, nil)
	if cand == nil {
		t.Fatal("expected candidate")
	}
	if cand.SuggestedName != "Block Sanctioned Country Traffic" {
		t.Fatalf("suggested name %q", cand.SuggestedName)
	}
}

func TestSuggestNameFallsBackToCategory(t *testing.T) {
	rule := provider.Rule{
		Expression: `ip.geoip.country in {"RU"}`,
		Action:     models.ActionBlock,
	}
	cand := Classify(rule, nil)
	if cand == nil {
		t.Fatal("expected candidate")
	}
	if cand.SuggestedName != "Geo Blocking" {
		t.Fatalf("suggested name %q", cand.SuggestedName)
	}
}

func TestNextFriendlyIDAdvancesWithExisting(t *testing.T) {
	existing := []models.RuleTemplate{
		{FriendlyID: "R001", Name: "One", Expression: "e1"},
		{FriendlyID: "R002", Name: "Two", Expression: "e2"},
	}
	rule := provider.Rule{
		Expression: `http.request.uri.path contains "../"`,
		Action:     models.ActionBlock,
	}
	cand := Classify(rule, existing)
	if cand == nil {
		t.Fatal("expected candidate")
	}
	if cand.SuggestedFriendlyID != "R003" {
		t.Fatalf("friendly id %q", cand.SuggestedFriendlyID)
	}
}
