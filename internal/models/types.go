package models

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RuleAction describes what the edge provider does when a rule matches.
type RuleAction string

const (
	// ActionBlock rejects the request outright.
	ActionBlock RuleAction = "block"
	// ActionChallenge interposes an interactive challenge.
	ActionChallenge RuleAction = "challenge"
	// ActionAllow exempts matching traffic from later rules.
	ActionAllow RuleAction = "allow"
	// ActionLog records the match without affecting the request.
	ActionLog RuleAction = "log"
	// ActionSkip bypasses selected security products for the match.
	ActionSkip RuleAction = "skip"
)

var validRuleActions = map[RuleAction]struct{}{
	ActionBlock:     {},
	ActionChallenge: {},
	ActionAllow:     {},
	ActionLog:       {},
	ActionSkip:      {},
}

// Valid reports whether the action is one of the supported provider actions.
func (a RuleAction) Valid() bool {
	_, ok := validRuleActions[a]
	return ok
}

// RuleTemplate is a versioned, reusable security-rule definition.
type RuleTemplate struct {
	ID               string                 `json:"id"`
	FriendlyID       string                 `json:"friendly_id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Version          string                 `json:"version"`
	Expression       string                 `json:"expression"`
	Action           RuleAction             `json:"action"`
	ActionParameters map[string]interface{} `json:"action_parameters,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	ApplicableTags   []string               `json:"applicable_tags,omitempty"`
	ExcludedDomains  []string               `json:"excluded_domains,omitempty"`
	Enabled          bool                   `json:"enabled"`
	Priority         int                    `json:"priority"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Validate performs minimal sanity checks on required fields.
func (t *RuleTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrValidation("name must be provided")
	}
	if strings.TrimSpace(t.Expression) == "" {
		return ErrValidation("expression must be provided")
	}
	if !t.Action.Valid() {
		return ErrValidation("invalid rule action: " + string(t.Action))
	}
	return nil
}

// Normalize trims free-form fields and canonicalises tag and domain lists.
func (t *RuleTemplate) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)
	t.Expression = strings.TrimSpace(t.Expression)
	t.Tags = normalizeLabels(t.Tags)
	t.ApplicableTags = normalizeLabels(t.ApplicableTags)
	t.ExcludedDomains = normalizeDomains(t.ExcludedDomains)
}

// IsDomainExcluded reports whether the domain is exempt from propagation.
func (t RuleTemplate) IsDomainExcluded(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, d := range t.ExcludedDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// NormalizedExpression collapses whitespace so cosmetic edits do not
// register as expression changes.
func NormalizedExpression(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// BumpMinor increments the minor segment of a dotted version string,
// leaving major and patch untouched. Malformed versions reset to "1.1.0".
func BumpMinor(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return "1.1.0"
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return "1.1.0"
	}
	parts[1] = strconv.Itoa(minor + 1)
	return strings.Join(parts, ".")
}

// CompareVersions orders two dotted version strings by per-segment integer
// comparison. Missing segments compare as zero; non-numeric segments fall
// back to lexical ordering.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := segmentAt(as, i), segmentAt(bs, i)
		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if cmp := strings.Compare(av, bv); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func segmentAt(parts []string, i int) string {
	if i >= len(parts) {
		return "0"
	}
	s := strings.TrimSpace(parts[i])
	if s == "" {
		return "0"
	}
	return s
}

var friendlyIDPattern = regexp.MustCompile(`^R(\d{3,})$`)

// NextFriendlyID returns the next unused sequential template token ("R001",
// "R002", ...) given the templates already in the collection.
func NextFriendlyID(existing []RuleTemplate) string {
	max := 0
	for _, t := range existing {
		m := friendlyIDPattern.FindStringSubmatch(t.FriendlyID)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("R%03d", max+1)
}

// ruleMarkerPattern matches the managed-rule marker embedded in provider
// rule descriptions, e.g. "[R003 v1.2.0]".
var ruleMarkerPattern = regexp.MustCompile(`\[(R\d{3,}) v([0-9][0-9.]*)\]`)

// FormatRuleDescription renders the provider-side description for a
// template, carrying the friendlyId/version marker the state index parses.
func FormatRuleDescription(t RuleTemplate) string {
	desc := t.Name
	if t.Description != "" {
		desc = t.Name + ": " + t.Description
	}
	return fmt.Sprintf("[%s v%s] %s", t.FriendlyID, t.Version, desc)
}

// ParseRuleDescription extracts the friendlyId and version marker from a
// provider rule description. ok is false for unmanaged rules.
func ParseRuleDescription(desc string) (friendlyID string, version string, ok bool) {
	m := ruleMarkerPattern.FindStringSubmatch(desc)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// TemplateCollection is the persisted template set plus its write stamp.
type TemplateCollection struct {
	Templates   []RuleTemplate `json:"templates"`
	LastUpdated time.Time      `json:"last_updated"`
}

// AppliedRuleStatus classifies one applied rule within a zone snapshot.
type AppliedRuleStatus string

const (
	// AppliedRuleActive means the zone runs the template's current version.
	AppliedRuleActive AppliedRuleStatus = "active"
	// AppliedRuleOutdated means the zone trails the template version.
	AppliedRuleOutdated AppliedRuleStatus = "outdated"
	// AppliedRuleCustom marks a managed marker whose template no longer exists.
	AppliedRuleCustom AppliedRuleStatus = "custom"
	// AppliedRuleConflict marks a rule judged to collide with a template.
	AppliedRuleConflict AppliedRuleStatus = "conflict"
)

// AppliedRule records one template occurrence on a zone.
type AppliedRule struct {
	FriendlyID     string            `json:"friendly_id"`
	Version        string            `json:"version"`
	ProviderRuleID string            `json:"provider_rule_id,omitempty"`
	Status         AppliedRuleStatus `json:"status"`
}

// CustomRule is a provider rule not matched to any template.
type CustomRule struct {
	ProviderRuleID string     `json:"provider_rule_id"`
	Expression     string     `json:"expression"`
	Action         RuleAction `json:"action"`
	Description    string     `json:"description,omitempty"`
}

// DomainRuleStatus is a point-in-time snapshot of a zone's rule state.
// It is a read-mostly cache: never assumed fresh beyond LastAnalyzed.
type DomainRuleStatus struct {
	ZoneID       string        `json:"zone_id"`
	DomainName   string        `json:"domain_name"`
	AppliedRules []AppliedRule `json:"applied_rules,omitempty"`
	CustomRules  []CustomRule  `json:"custom_rules,omitempty"`
	LastAnalyzed time.Time     `json:"last_analyzed"`
	RefreshError string        `json:"refresh_error,omitempty"`
}

// DomainRuleState is the persisted snapshot set keyed by zone id.
type DomainRuleState struct {
	Zones       map[string]DomainRuleStatus `json:"zones"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// AffectedReason explains why a domain needs propagation.
type AffectedReason string

const (
	// ReasonMissing means the zone has no rule for the template at all.
	ReasonMissing AffectedReason = "missing"
	// ReasonOutdated means the zone runs an older template version.
	ReasonOutdated AffectedReason = "outdated"
)

// AffectedDomain is a transient resolver result, never persisted.
type AffectedDomain struct {
	ZoneID         string         `json:"zone_id"`
	DomainName     string         `json:"domain_name"`
	CurrentVersion string         `json:"current_version,omitempty"`
	Reason         AffectedReason `json:"reason"`
}

// ConflictType classifies how closely two rule expressions collide.
type ConflictType string

const (
	// ConflictIdentical means byte-equal expressions.
	ConflictIdentical ConflictType = "identical"
	// ConflictSimilar means token similarity above the similarity threshold.
	ConflictSimilar ConflictType = "similar"
)

// Conflict is a pre-existing provider rule judged to collide with a
// template being applied. Transient, owned by the producing call.
type Conflict struct {
	ZoneID         string       `json:"zone_id"`
	ProviderRuleID string       `json:"provider_rule_id"`
	Expression     string       `json:"expression"`
	Action         RuleAction   `json:"action"`
	Description    string       `json:"description,omitempty"`
	ConflictType   ConflictType `json:"conflict_type"`
	Confidence     float64      `json:"confidence"`
}

// ConflictResolution selects how bulk propagation treats conflicts.
type ConflictResolution string

const (
	// ResolutionReplace removes conflicting rules before applying.
	ResolutionReplace ConflictResolution = "replace"
	// ResolutionMerge is reserved and always reported as unsupported.
	ResolutionMerge ConflictResolution = "merge"
	// ResolutionSkip leaves conflicting zones untouched.
	ResolutionSkip ConflictResolution = "skip"
	// ResolutionManual flags conflicting zones for human review.
	ResolutionManual ConflictResolution = "manual"
)

var validResolutions = map[ConflictResolution]struct{}{
	ResolutionReplace: {},
	ResolutionMerge:   {},
	ResolutionSkip:    {},
	ResolutionManual:  {},
}

// Valid reports whether the resolution strategy is recognised.
func (r ConflictResolution) Valid() bool {
	_, ok := validResolutions[r]
	return ok
}

// ZoneResult is the per-zone outcome of one propagation.
type ZoneResult struct {
	ZoneID         string     `json:"zone_id"`
	DomainName     string     `json:"domain_name"`
	Success        bool       `json:"success"`
	ProviderRuleID string     `json:"provider_rule_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	Conflicts      []Conflict `json:"conflicts,omitempty"`
}

// ApplySummary aggregates per-zone outcomes of a propagation run.
type ApplySummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Conflicts  int `json:"conflicts"`
}

// ApplicationLogEntry records one completed (non-preview) propagation.
type ApplicationLogEntry struct {
	ID                 string             `json:"id"`
	TemplateID         string             `json:"template_id"`
	TemplateName       string             `json:"template_name"`
	TargetZoneIDs      []string           `json:"target_zone_ids"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
	Timestamp          time.Time          `json:"timestamp"`
	Results            []ZoneResult       `json:"results"`
	Summary            ApplySummary       `json:"summary"`
}

// Preferences stores operator defaults surfaced through the API.
type Preferences struct {
	DefaultResolution ConflictResolution `json:"default_resolution,omitempty"`
	DefaultPreview    bool               `json:"default_preview"`
	UpdatedAt         time.Time          `json:"updated_at,omitempty"`
}

// UserRole describes supported account roles.
type UserRole string

const (
	// RoleAdmin may mutate templates and trigger propagation.
	RoleAdmin UserRole = "admin"
	// RoleViewer may read templates, snapshots and the application log.
	RoleViewer UserRole = "viewer"
)

// User represents an authenticated operator.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	Password  string    `json:"password"` // hashed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sanitize clears sensitive fields before returning API payloads.
func (u User) Sanitize() User {
	u.Password = ""
	return u
}

// ErrValidation indicates input validation failure.
type ErrValidation string

func (e ErrValidation) Error() string {
	return string(e)
}

// ErrNotFound indicates the referenced record does not exist.
type ErrNotFound string

func (e ErrNotFound) Error() string {
	return string(e)
}

func normalizeDomains(values []string) []string {
	out := normalizeStrings(values)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	out = uniqueStrings(out)
	sort.Strings(out)
	return out
}

func normalizeLabels(values []string) []string {
	labels := normalizeStrings(values)
	for i := range labels {
		labels[i] = strings.ToLower(labels[i])
	}
	return uniqueStrings(labels)
}

func normalizeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
