// Package provider wraps the third-party edge/WAF vendor API. The engine
// only consumes the API interface; the HTTP client in this package is the
// production implementation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rulegate/internal/models"
)

// Zone is an externally hosted web property managed through the provider.
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Rule is a provider-side security rule in the custom firewall phase.
type Rule struct {
	ID               string                 `json:"id"`
	Expression       string                 `json:"expression"`
	Action           models.RuleAction      `json:"action"`
	ActionParameters map[string]interface{} `json:"action_parameters,omitempty"`
	Description      string                 `json:"description,omitempty"`
	Enabled          bool                   `json:"enabled"`
	ModifiedOn       time.Time              `json:"modified_on,omitempty"`
}

// Ruleset is the provider's container for a zone's custom-phase rules.
type Ruleset struct {
	ID    string `json:"id"`
	Phase string `json:"phase,omitempty"`
	Rules []Rule `json:"rules"`
}

// API is the collaborator surface the engine depends on. All calls are
// stateless; implementations must be safe for concurrent use.
type API interface {
	ListZones(ctx context.Context, page, perPage int) ([]Zone, int, error)
	GetSecurityRules(ctx context.Context, zoneID string) ([]Rule, error)
	AddRule(ctx context.Context, zoneID string, rule Rule) (Ruleset, error)
	RemoveRule(ctx context.Context, zoneID string, ruleID string) error
}

// ErrZoneNotFound indicates the provider does not know the zone.
var ErrZoneNotFound = errors.New("provider: zone not found")

// Error wraps an upstream call failure with the zone it concerned.
type Error struct {
	ZoneID string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.ZoneID == "" {
		return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider: %s zone %s: %v", e.Op, e.ZoneID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ListAllZones pages through the zone listing until exhausted.
func ListAllZones(ctx context.Context, api API, perPage int) ([]Zone, error) {
	if perPage <= 0 {
		perPage = 50
	}
	var out []Zone
	page := 1
	for {
		zones, totalPages, err := api.ListZones(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		out = append(out, zones...)
		if page >= totalPages || len(zones) == 0 {
			return out, nil
		}
		page++
	}
}
