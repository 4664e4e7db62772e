// Package stateindex maintains per-zone snapshots of which templates are
// applied at which versions. Snapshots are a read-mostly cache: they are
// refreshed explicitly and only trusted as of their LastAnalyzed stamp.
package stateindex

import (
	"context"
	"log"
	"time"

	"rulegate/internal/models"
	"rulegate/internal/provider"
)

// Port is the storage surface the index requires.
type Port interface {
	GetDomainRuleState() (models.DomainRuleState, error)
	SaveDomainRuleState(models.DomainRuleState) error
}

// TemplateSource yields the current template set for rule matching.
type TemplateSource interface {
	List() ([]models.RuleTemplate, error)
}

// Index builds and persists zone rule snapshots.
type Index struct {
	store     Port
	provider  provider.API
	templates TemplateSource
}

// New creates a state index.
func New(store Port, api provider.API, templates TemplateSource) *Index {
	return &Index{store: store, provider: api, templates: templates}
}

// Snapshot returns the persisted snapshot for a zone, if present.
func (x *Index) Snapshot(zoneID string) (models.DomainRuleStatus, bool, error) {
	state, err := x.store.GetDomainRuleState()
	if err != nil {
		return models.DomainRuleStatus{}, false, err
	}
	status, ok := state.Zones[zoneID]
	return status, ok, nil
}

// Snapshots returns all persisted zone snapshots.
func (x *Index) Snapshots() (models.DomainRuleState, error) {
	return x.store.GetDomainRuleState()
}

// Refresh rebuilds the snapshot for one zone from the provider and
// persists it. Provider failures surface directly: single-zone refresh has
// no batch context to downgrade into.
func (x *Index) Refresh(ctx context.Context, zone provider.Zone) (models.DomainRuleStatus, error) {
	templates, err := x.templates.List()
	if err != nil {
		return models.DomainRuleStatus{}, err
	}
	rules, err := x.provider.GetSecurityRules(ctx, zone.ID)
	if err != nil {
		return models.DomainRuleStatus{}, err
	}
	status := buildStatus(zone, rules, templates)
	if err := x.persist(status); err != nil {
		return models.DomainRuleStatus{}, err
	}
	return status, nil
}

// RefreshAll rebuilds snapshots for every given zone. Zones are processed
// independently: one zone's provider failure is logged as a warning and
// recorded as an error entry without aborting the rest. Nothing about the
// aggregate operation is atomic across zones.
func (x *Index) RefreshAll(ctx context.Context, zones []provider.Zone) (map[string]models.DomainRuleStatus, error) {
	templates, err := x.templates.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.DomainRuleStatus, len(zones))
	for _, zone := range zones {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		rules, err := x.provider.GetSecurityRules(ctx, zone.ID)
		if err != nil {
			log.Printf("stateindex: refresh zone %s (%s) failed: %v", zone.ID, zone.Name, err)
			out[zone.ID] = models.DomainRuleStatus{
				ZoneID:       zone.ID,
				DomainName:   zone.Name,
				LastAnalyzed: time.Now().UTC(),
				RefreshError: err.Error(),
			}
			continue
		}
		out[zone.ID] = buildStatus(zone, rules, templates)
	}
	state, err := x.store.GetDomainRuleState()
	if err != nil {
		return out, err
	}
	for zoneID, status := range out {
		state.Zones[zoneID] = status
	}
	if err := x.store.SaveDomainRuleState(state); err != nil {
		return out, err
	}
	return out, nil
}

func (x *Index) persist(status models.DomainRuleStatus) error {
	state, err := x.store.GetDomainRuleState()
	if err != nil {
		return err
	}
	state.Zones[status.ZoneID] = status
	return x.store.SaveDomainRuleState(state)
}

// buildStatus matches each provider rule by its parsed friendlyId marker
// against the template set; unmatched rules become customRules.
func buildStatus(zone provider.Zone, rules []provider.Rule, templates []models.RuleTemplate) models.DomainRuleStatus {
	byFriendlyID := make(map[string]models.RuleTemplate, len(templates))
	for _, t := range templates {
		byFriendlyID[t.FriendlyID] = t
	}

	status := models.DomainRuleStatus{
		ZoneID:       zone.ID,
		DomainName:   zone.Name,
		LastAnalyzed: time.Now().UTC(),
	}
	for _, rule := range rules {
		friendlyID, version, ok := models.ParseRuleDescription(rule.Description)
		if !ok {
			status.CustomRules = append(status.CustomRules, models.CustomRule{
				ProviderRuleID: rule.ID,
				Expression:     rule.Expression,
				Action:         rule.Action,
				Description:    rule.Description,
			})
			continue
		}
		applied := models.AppliedRule{
			FriendlyID:     friendlyID,
			Version:        version,
			ProviderRuleID: rule.ID,
		}
		tmpl, known := byFriendlyID[friendlyID]
		switch {
		case !known:
			// Marker refers to a template that no longer exists.
			applied.Status = models.AppliedRuleCustom
		case models.CompareVersions(version, tmpl.Version) < 0:
			applied.Status = models.AppliedRuleOutdated
		default:
			applied.Status = models.AppliedRuleActive
		}
		status.AppliedRules = append(status.AppliedRules, applied)
	}
	return status
}
