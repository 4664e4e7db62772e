// Package resolver diffs a template against zone snapshots to determine
// which domains need propagation.
package resolver

import (
	"rulegate/internal/models"
)

// FindOutdated returns the domains that are missing the template or run a
// stale version of it, in the order the snapshots were supplied. Domains
// listed in the template's excludedDomains are omitted entirely, as are
// domains that match or lead the template's version: a zone is never
// downgraded. The function is pure; identical inputs produce identical,
// order-preserving output.
func FindOutdated(tmpl models.RuleTemplate, snapshots []models.DomainRuleStatus) []models.AffectedDomain {
	out := make([]models.AffectedDomain, 0, len(snapshots))
	for _, snap := range snapshots {
		if tmpl.IsDomainExcluded(snap.DomainName) {
			continue
		}
		applied, ok := findApplied(snap, tmpl.FriendlyID)
		if !ok {
			out = append(out, models.AffectedDomain{
				ZoneID:     snap.ZoneID,
				DomainName: snap.DomainName,
				Reason:     models.ReasonMissing,
			})
			continue
		}
		if models.CompareVersions(applied.Version, tmpl.Version) < 0 {
			out = append(out, models.AffectedDomain{
				ZoneID:         snap.ZoneID,
				DomainName:     snap.DomainName,
				CurrentVersion: applied.Version,
				Reason:         models.ReasonOutdated,
			})
		}
	}
	return out
}

// InUse reports whether any snapshot carries the template's friendlyId.
// Callers use this to refuse deleting a template that is still deployed.
func InUse(tmpl models.RuleTemplate, snapshots []models.DomainRuleStatus) []models.DomainRuleStatus {
	var using []models.DomainRuleStatus
	for _, snap := range snapshots {
		if _, ok := findApplied(snap, tmpl.FriendlyID); ok {
			using = append(using, snap)
		}
	}
	return using
}

func findApplied(snap models.DomainRuleStatus, friendlyID string) (models.AppliedRule, bool) {
	for _, a := range snap.AppliedRules {
		if a.FriendlyID == friendlyID {
			return a, true
		}
	}
	return models.AppliedRule{}, false
}
