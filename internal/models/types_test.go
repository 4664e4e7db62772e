package models

import "testing"

func TestBumpMinor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0.0", "1.1.0"},
		{"1.2.0", "1.3.0"},
		{"2.9.4", "2.10.4"},
		{"1.9", "1.10"},
		{"garbage", "1.1.0"},
	}
	for _, tc := range cases {
		if got := BumpMinor(tc.in); got != tc.want {
			t.Errorf("BumpMinor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompareVersionsNumericSegments(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"1.10", "1.9", 1},
		{"2.0.0", "1.99.99", 1},
		{"1.0", "1.0.0", 0},
		{"1.0.1", "1.0", 1},
	}
	for _, tc := range cases {
		if got := CompareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNextFriendlyID(t *testing.T) {
	if got := NextFriendlyID(nil); got != "R001" {
		t.Fatalf("empty collection: got %q", got)
	}
	existing := []RuleTemplate{
		{FriendlyID: "R001"},
		{FriendlyID: "R007"},
		{FriendlyID: "bogus"},
	}
	if got := NextFriendlyID(existing); got != "R008" {
		t.Fatalf("got %q, want R008", got)
	}
}

func TestRuleDescriptionRoundTrip(t *testing.T) {
	tmpl := RuleTemplate{
		FriendlyID:  "R012",
		Version:     "1.4.0",
		Name:        "Block SQL Injection",
		Description: "common injection probes",
	}
	desc := FormatRuleDescription(tmpl)
	fid, version, ok := ParseRuleDescription(desc)
	if !ok {
		t.Fatalf("marker not parsed from %q", desc)
	}
	if fid != "R012" || version != "1.4.0" {
		t.Fatalf("got %s v%s", fid, version)
	}
	if _, _, ok := ParseRuleDescription("hand-written rule"); ok {
		t.Fatal("unmanaged description must not parse")
	}
}

func TestTemplateValidate(t *testing.T) {
	tmpl := RuleTemplate{Name: "n", Expression: "e", Action: ActionBlock}
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tmpl.Action = "explode"
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected invalid action error")
	}
	tmpl = RuleTemplate{Expression: "e", Action: ActionBlock}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestTemplateNormalizeExcludedDomains(t *testing.T) {
	tmpl := RuleTemplate{
		Name:            " n ",
		Expression:      " e ",
		Action:          ActionBlock,
		ExcludedDomains: []string{" B.example.com", "a.example.com", "b.example.com", ""},
	}
	tmpl.Normalize()
	if len(tmpl.ExcludedDomains) != 2 {
		t.Fatalf("got %v", tmpl.ExcludedDomains)
	}
	if tmpl.ExcludedDomains[0] != "a.example.com" || tmpl.ExcludedDomains[1] != "b.example.com" {
		t.Fatalf("got %v", tmpl.ExcludedDomains)
	}
	if !tmpl.IsDomainExcluded("B.EXAMPLE.COM") {
		t.Fatal("exclusion check must be case-insensitive")
	}
}
