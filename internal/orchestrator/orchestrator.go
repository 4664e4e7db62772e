// Package orchestrator bulk-applies templates across zones with batching,
// conflict resolution and audit logging.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"rulegate/internal/analyzer"
	"rulegate/internal/audit"
	"rulegate/internal/models"
	"rulegate/internal/provider"
)

// DefaultBatchSize is the number of zones processed concurrently per batch.
const DefaultBatchSize = 5

// PreviewRuleID is the sentinel identifier recorded for successful preview
// results, where no provider rule was actually created.
const PreviewRuleID = "preview"

// TargetZone names one zone a propagation run targets.
type TargetZone struct {
	ZoneID     string `json:"zone_id"`
	DomainName string `json:"domain_name"`
}

// Report bundles the per-zone results and aggregate summary of one run.
type Report struct {
	Results []models.ZoneResult `json:"results"`
	Summary models.ApplySummary `json:"summary"`
}

// Service coordinates bulk propagation against the provider.
type Service struct {
	provider  provider.API
	audit     *audit.Log
	batchSize int
	pacer     Pacer
}

// New creates an orchestrator. A nil pacer disables inter-batch pacing.
func New(api provider.API, auditLog *audit.Log, batchSize int, pacer Pacer) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		provider:  api,
		audit:     auditLog,
		batchSize: batchSize,
		pacer:     pacer,
	}
}

// Apply propagates the template to the target zones in fixed-size
// concurrent batches separated by the pacer's delay. Per-zone provider
// errors are downgraded to failure entries and never abort the batch.
// Preview runs share the exact conflict-detection path but perform no
// provider mutation and append no audit entry.
func (s *Service) Apply(ctx context.Context, tmpl models.RuleTemplate, targets []TargetZone, resolution models.ConflictResolution, preview bool) (Report, error) {
	if !resolution.Valid() {
		return Report{}, models.ErrValidation("invalid conflict resolution: " + string(resolution))
	}

	results := make([]models.ZoneResult, len(targets))
	for start := 0; start < len(targets); start += s.batchSize {
		if start > 0 && s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				// Pacing is cooperative backpressure only; a cancelled
				// context will surface through the per-zone calls.
				log.Printf("propagate: pacer wait interrupted: %v", err)
			}
		}
		end := start + s.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.applyZone(ctx, tmpl, targets[i], resolution, preview)
			}(i)
		}
		wg.Wait()
	}

	report := Report{Results: results, Summary: summarize(results)}
	if preview {
		return report, nil
	}

	zoneIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		zoneIDs = append(zoneIDs, t.ZoneID)
	}
	if _, err := s.audit.Append(models.ApplicationLogEntry{
		TemplateID:         tmpl.ID,
		TemplateName:       tmpl.Name,
		TargetZoneIDs:      zoneIDs,
		ConflictResolution: resolution,
		Results:            results,
		Summary:            report.Summary,
	}); err != nil {
		return report, fmt.Errorf("propagation applied but audit log write failed: %w", err)
	}
	return report, nil
}

func (s *Service) applyZone(ctx context.Context, tmpl models.RuleTemplate, target TargetZone, resolution models.ConflictResolution, preview bool) models.ZoneResult {
	result := models.ZoneResult{ZoneID: target.ZoneID, DomainName: target.DomainName}

	if tmpl.IsDomainExcluded(target.DomainName) {
		result.Message = "domain excluded from template"
		return result
	}

	rules, err := s.provider.GetSecurityRules(ctx, target.ZoneID)
	if err != nil {
		result.Message = fmt.Sprintf("fetch rules: %v", err)
		return result
	}

	conflicts := analyzer.DetectConflicts(target.ZoneID, rules, tmpl.Expression)
	result.Conflicts = conflicts
	if len(conflicts) > 0 {
		switch resolution {
		case models.ResolutionSkip:
			result.Message = fmt.Sprintf("skipped: %d conflicting rule(s)", len(conflicts))
			return result
		case models.ResolutionManual:
			result.Message = fmt.Sprintf("manual resolution required for %d conflict(s)", len(conflicts))
			return result
		case models.ResolutionMerge:
			// Never silently treated as replace.
			result.Message = "merge resolution not implemented"
			return result
		case models.ResolutionReplace:
			if !preview {
				for _, c := range conflicts {
					if err := s.provider.RemoveRule(ctx, target.ZoneID, c.ProviderRuleID); err != nil {
						log.Printf("propagate: zone %s: remove conflicting rule %s failed: %v",
							target.ZoneID, c.ProviderRuleID, err)
					}
				}
			}
		}
	}

	if preview {
		result.Success = true
		result.ProviderRuleID = PreviewRuleID
		result.Message = "preview: rule would be applied"
		return result
	}

	ruleset, err := s.provider.AddRule(ctx, target.ZoneID, provider.Rule{
		ID:               uuid.NewString(),
		Expression:       tmpl.Expression,
		Action:           tmpl.Action,
		ActionParameters: tmpl.ActionParameters,
		Description:      models.FormatRuleDescription(tmpl),
		Enabled:          tmpl.Enabled,
	})
	if err != nil {
		result.Message = fmt.Sprintf("add rule: %v", err)
		return result
	}
	result.Success = true
	result.ProviderRuleID = assignedRuleID(ruleset, tmpl)
	return result
}

// assignedRuleID finds the identifier the provider gave the new rule.
func assignedRuleID(rs provider.Ruleset, tmpl models.RuleTemplate) string {
	marker := models.FormatRuleDescription(tmpl)
	for i := len(rs.Rules) - 1; i >= 0; i-- {
		if rs.Rules[i].Description == marker {
			return rs.Rules[i].ID
		}
	}
	if len(rs.Rules) > 0 {
		return rs.Rules[len(rs.Rules)-1].ID
	}
	return rs.ID
}

func summarize(results []models.ZoneResult) models.ApplySummary {
	summary := models.ApplySummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		if len(r.Conflicts) > 0 {
			summary.Conflicts++
		}
	}
	return summary
}

// Resync re-applies the template sequentially across the target zones,
// replacing any rule bearing the template's marker, and invokes progress
// with a monotonically non-decreasing completed count after each zone.
// It returns the successful count plus the explicit per-zone failures.
func (s *Service) Resync(ctx context.Context, tmpl models.RuleTemplate, targets []TargetZone, progress func(completed, total int)) (int, []models.ZoneResult) {
	successful := 0
	var failures []models.ZoneResult
	total := len(targets)

	for i, target := range targets {
		result := s.resyncZone(ctx, tmpl, target)
		if result.Success {
			successful++
		} else {
			failures = append(failures, result)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return successful, failures
}

func (s *Service) resyncZone(ctx context.Context, tmpl models.RuleTemplate, target TargetZone) models.ZoneResult {
	result := models.ZoneResult{ZoneID: target.ZoneID, DomainName: target.DomainName}
	if tmpl.IsDomainExcluded(target.DomainName) {
		result.Message = "domain excluded from template"
		return result
	}
	rules, err := s.provider.GetSecurityRules(ctx, target.ZoneID)
	if err != nil {
		result.Message = fmt.Sprintf("fetch rules: %v", err)
		return result
	}
	for _, rule := range rules {
		friendlyID, _, ok := models.ParseRuleDescription(rule.Description)
		if !ok || friendlyID != tmpl.FriendlyID {
			continue
		}
		if err := s.provider.RemoveRule(ctx, target.ZoneID, rule.ID); err != nil {
			log.Printf("propagate: zone %s: remove stale rule %s failed: %v", target.ZoneID, rule.ID, err)
		}
	}
	ruleset, err := s.provider.AddRule(ctx, target.ZoneID, provider.Rule{
		ID:               uuid.NewString(),
		Expression:       tmpl.Expression,
		Action:           tmpl.Action,
		ActionParameters: tmpl.ActionParameters,
		Description:      models.FormatRuleDescription(tmpl),
		Enabled:          tmpl.Enabled,
	})
	if err != nil {
		result.Message = fmt.Sprintf("add rule: %v", err)
		return result
	}
	result.Success = true
	result.ProviderRuleID = assignedRuleID(ruleset, tmpl)
	return result
}
