package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rulegate/internal/audit"
	"rulegate/internal/models"
	"rulegate/internal/provider"
	"rulegate/internal/store"
)

type fakeAPI struct {
	mu      sync.Mutex
	rules   map[string][]provider.Rule
	failGet map[string]error
	failAdd map[string]error
	added   map[string][]provider.Rule
	removed map[string][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		rules:   map[string][]provider.Rule{},
		added:   map[string][]provider.Rule{},
		removed: map[string][]string{},
	}
}

func (f *fakeAPI) ListZones(ctx context.Context, page, perPage int) ([]provider.Zone, int, error) {
	return nil, 1, nil
}

func (f *fakeAPI) GetSecurityRules(ctx context.Context, zoneID string) ([]provider.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failGet[zoneID]; ok {
		return nil, err
	}
	return f.rules[zoneID], nil
}

func (f *fakeAPI) AddRule(ctx context.Context, zoneID string, rule provider.Rule) (provider.Ruleset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failAdd[zoneID]; ok {
		return provider.Ruleset{}, err
	}
	f.added[zoneID] = append(f.added[zoneID], rule)
	return provider.Ruleset{ID: "rs-" + zoneID, Rules: append(f.rules[zoneID], rule)}, nil
}

func (f *fakeAPI) RemoveRule(ctx context.Context, zoneID, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[zoneID] = append(f.removed[zoneID], ruleID)
	return nil
}

func (f *fakeAPI) addedCount(zoneID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added[zoneID])
}

func newTestService(t *testing.T, api provider.API) (*Service, *audit.Log) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	auditLog := audit.New(st)
	return New(api, auditLog, 2, FixedDelayPacer{}), auditLog
}

func blockTemplate() models.RuleTemplate {
	return models.RuleTemplate{
		ID:         "t1",
		FriendlyID: "R001",
		Name:       "Block SQLi",
		Version:    "1.2.0",
		Expression: `http.request.uri.query contains "union select"`,
		Action:     models.ActionBlock,
		Enabled:    true,
	}
}

func TestApplySkipResolutionSummary(t *testing.T) {
	tmpl := blockTemplate()
	api := newFakeAPI()
	api.rules["z2"] = []provider.Rule{
		{ID: "r1", Expression: tmpl.Expression, Action: models.ActionBlock, Description: "old copy"},
	}
	svc, auditLog := newTestService(t, api)

	targets := []TargetZone{
		{ZoneID: "z1", DomainName: "one.example.com"},
		{ZoneID: "z2", DomainName: "two.example.com"},
	}
	report, err := svc.Apply(context.Background(), tmpl, targets, models.ResolutionSkip, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := models.ApplySummary{Total: 2, Successful: 1, Failed: 1, Conflicts: 1}
	if report.Summary != want {
		t.Fatalf("summary %+v, want %+v", report.Summary, want)
	}
	if api.addedCount("z1") != 1 {
		t.Fatal("z1 rule not created")
	}
	if api.addedCount("z2") != 0 {
		t.Fatal("z2 must not receive a rule under skip resolution")
	}
	if report.Results[1].Conflicts[0].ConflictType != models.ConflictIdentical {
		t.Fatalf("z2 conflict: %+v", report.Results[1].Conflicts)
	}

	entries, err := auditLog.List()
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) != 1 || entries[0].Summary != want {
		t.Fatalf("audit entries: %+v", entries)
	}
}

func TestPreviewMatchesLiveClassification(t *testing.T) {
	tmpl := blockTemplate()
	setup := func() *fakeAPI {
		api := newFakeAPI()
		api.rules["z2"] = []provider.Rule{
			{ID: "r1", Expression: tmpl.Expression, Action: models.ActionBlock},
		}
		return api
	}
	targets := []TargetZone{
		{ZoneID: "z1", DomainName: "one.example.com"},
		{ZoneID: "z2", DomainName: "two.example.com"},
	}

	previewAPI := setup()
	svc, auditLog := newTestService(t, previewAPI)
	previewReport, err := svc.Apply(context.Background(), tmpl, targets, models.ResolutionSkip, true)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	liveAPI := setup()
	liveSvc, _ := newTestService(t, liveAPI)
	liveReport, err := liveSvc.Apply(context.Background(), tmpl, targets, models.ResolutionSkip, false)
	if err != nil {
		t.Fatalf("live: %v", err)
	}

	if previewReport.Summary != liveReport.Summary {
		t.Fatalf("preview summary %+v differs from live %+v", previewReport.Summary, liveReport.Summary)
	}
	for i := range previewReport.Results {
		if previewReport.Results[i].Success != liveReport.Results[i].Success {
			t.Fatalf("zone %d classification differs", i)
		}
		if len(previewReport.Results[i].Conflicts) != len(liveReport.Results[i].Conflicts) {
			t.Fatalf("zone %d conflict lists differ", i)
		}
	}
	if previewReport.Results[0].ProviderRuleID != PreviewRuleID {
		t.Fatalf("preview rule id %q", previewReport.Results[0].ProviderRuleID)
	}
	if previewAPI.addedCount("z1") != 0 || previewAPI.addedCount("z2") != 0 {
		t.Fatal("preview must not mutate the provider")
	}
	entries, err := auditLog.List()
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("preview must not append an audit entry")
	}
}

func TestApplyExcludedDomain(t *testing.T) {
	tmpl := blockTemplate()
	tmpl.ExcludedDomains = []string{"two.example.com"}
	api := newFakeAPI()
	svc, _ := newTestService(t, api)

	report, err := svc.Apply(context.Background(), tmpl,
		[]TargetZone{{ZoneID: "z2", DomainName: "two.example.com"}},
		models.ResolutionSkip, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Results[0].Success {
		t.Fatal("excluded domain must fail")
	}
	if report.Results[0].Message != "domain excluded from template" {
		t.Fatalf("message %q", report.Results[0].Message)
	}
	if api.addedCount("z2") != 0 {
		t.Fatal("excluded domain must not be mutated")
	}
}

func TestApplyMergeIsExplicitlyUnsupported(t *testing.T) {
	tmpl := blockTemplate()
	api := newFakeAPI()
	api.rules["z1"] = []provider.Rule{{ID: "r1", Expression: tmpl.Expression, Action: models.ActionBlock}}
	svc, _ := newTestService(t, api)

	report, err := svc.Apply(context.Background(), tmpl,
		[]TargetZone{{ZoneID: "z1", DomainName: "one.example.com"}},
		models.ResolutionMerge, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Results[0].Success {
		t.Fatal("merge must not succeed")
	}
	if report.Results[0].Message != "merge resolution not implemented" {
		t.Fatalf("message %q", report.Results[0].Message)
	}
	if api.addedCount("z1") != 0 {
		t.Fatal("merge must never silently replace")
	}
}

func TestApplyReplaceRemovesConflictsFirst(t *testing.T) {
	tmpl := blockTemplate()
	api := newFakeAPI()
	api.rules["z1"] = []provider.Rule{{ID: "r1", Expression: tmpl.Expression, Action: models.ActionBlock}}
	svc, _ := newTestService(t, api)

	report, err := svc.Apply(context.Background(), tmpl,
		[]TargetZone{{ZoneID: "z1", DomainName: "one.example.com"}},
		models.ResolutionReplace, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !report.Results[0].Success {
		t.Fatalf("replace failed: %+v", report.Results[0])
	}
	if len(api.removed["z1"]) != 1 || api.removed["z1"][0] != "r1" {
		t.Fatalf("removed: %+v", api.removed)
	}
	if api.addedCount("z1") != 1 {
		t.Fatal("replacement rule not created")
	}
}

func TestApplyDowngradesProviderErrors(t *testing.T) {
	tmpl := blockTemplate()
	api := newFakeAPI()
	api.failGet = map[string]error{"z1": errors.New("upstream 502")}
	api.failAdd = map[string]error{"z2": errors.New("upstream 500")}
	svc, _ := newTestService(t, api)

	targets := []TargetZone{
		{ZoneID: "z1", DomainName: "one.example.com"},
		{ZoneID: "z2", DomainName: "two.example.com"},
		{ZoneID: "z3", DomainName: "three.example.com"},
	}
	report, err := svc.Apply(context.Background(), tmpl, targets, models.ResolutionSkip, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Summary.Failed != 2 || report.Summary.Successful != 1 {
		t.Fatalf("summary %+v", report.Summary)
	}
	if !report.Results[2].Success {
		t.Fatal("z3 must succeed despite sibling failures")
	}
}

func TestApplyInvalidResolution(t *testing.T) {
	svc, _ := newTestService(t, newFakeAPI())
	_, err := svc.Apply(context.Background(), blockTemplate(), nil, "explode", false)
	var verr models.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResyncProgressAndFailures(t *testing.T) {
	tmpl := blockTemplate()
	api := newFakeAPI()
	api.failGet = map[string]error{"z2": errors.New("upstream 502")}
	api.rules["z1"] = []provider.Rule{
		{ID: "old1", Expression: "stale", Action: models.ActionBlock, Description: "[R001 v1.1.0] Block SQLi"},
	}
	svc, _ := newTestService(t, api)

	targets := []TargetZone{
		{ZoneID: "z1", DomainName: "one.example.com"},
		{ZoneID: "z2", DomainName: "two.example.com"},
		{ZoneID: "z3", DomainName: "three.example.com"},
	}
	var calls [][2]int
	successful, failures := svc.Resync(context.Background(), tmpl, targets, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	if successful != 2 {
		t.Fatalf("successful = %d", successful)
	}
	if len(failures) != 1 || failures[0].ZoneID != "z2" {
		t.Fatalf("failures: %+v", failures)
	}
	if len(calls) != 3 {
		t.Fatalf("progress calls: %v", calls)
	}
	prev := 0
	for _, c := range calls {
		if c[0] <= prev || c[1] != 3 {
			t.Fatalf("progress not monotonic: %v", calls)
		}
		prev = c[0]
	}
	if len(api.removed["z1"]) != 1 || api.removed["z1"][0] != "old1" {
		t.Fatalf("stale rule not replaced: %+v", api.removed)
	}
}
