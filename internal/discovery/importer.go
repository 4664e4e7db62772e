// Package discovery reverse-engineers ad-hoc provider rules into templates.
package discovery

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"rulegate/internal/classifier"
	"rulegate/internal/ledger"
	"rulegate/internal/models"
	"rulegate/internal/provider"
)

const (
	defaultBatchSize = 3
	defaultDelay     = 500 * time.Millisecond
)

// Result summarises one discovery run.
type Result struct {
	Imported         int                    `json:"imported"`
	Updated          int                    `json:"updated"`
	Skipped          int                    `json:"skipped"`
	Templates        []models.RuleTemplate  `json:"templates"`
	UpdatedTemplates []models.RuleTemplate  `json:"updated_templates,omitempty"`
	Pending          []classifier.Candidate `json:"pending,omitempty"`
}

// Importer converts existing ad-hoc rules into templates via the ledger.
type Importer struct {
	provider  provider.API
	ledger    *ledger.Ledger
	batchSize int
	delay     time.Duration
}

// New creates an importer.
func New(api provider.API, l *ledger.Ledger, batchSize int, delay time.Duration) *Importer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if delay < 0 {
		delay = defaultDelay
	}
	return &Importer{provider: api, ledger: l, batchSize: batchSize, delay: delay}
}

type zoneRules struct {
	zone  provider.Zone
	rules []provider.Rule
}

// Run fetches custom rules across the zones in small concurrent batches,
// classifies each against the current template set plus the templates
// already created in this run, and creates templates for candidates at or
// above the acceptance confidence. Zone fetch failures are logged and
// excluded from the analyzed set without aborting the run. The same pass
// reconciles applied rules against stored definitions and reports drifted
// templates without creating duplicates.
func (im *Importer) Run(ctx context.Context, zones []provider.Zone) (Result, error) {
	templates, err := im.ledger.List()
	if err != nil {
		return Result{}, err
	}

	fetched := im.fetchAll(ctx, zones)

	result := Result{Templates: []models.RuleTemplate{}}
	byFriendlyID := make(map[string]models.RuleTemplate, len(templates))
	for _, t := range templates {
		byFriendlyID[t.FriendlyID] = t
	}
	drifted := map[string]struct{}{}
	createdExpressions := map[string]struct{}{}

	for _, zr := range fetched {
		for _, rule := range zr.rules {
			if friendlyID, _, ok := models.ParseRuleDescription(rule.Description); ok {
				tmpl, known := byFriendlyID[friendlyID]
				if !known {
					continue
				}
				if models.NormalizedExpression(rule.Expression) != models.NormalizedExpression(tmpl.Expression) {
					if _, seen := drifted[tmpl.ID]; !seen {
						drifted[tmpl.ID] = struct{}{}
						result.UpdatedTemplates = append(result.UpdatedTemplates, tmpl)
					}
				}
				continue
			}

			if _, dup := createdExpressions[models.NormalizedExpression(rule.Expression)]; dup {
				result.Skipped++
				continue
			}
			cand := classifier.Classify(rule, templates)
			if cand == nil {
				result.Skipped++
				continue
			}
			if cand.Confidence < classifier.AcceptConfidence {
				result.Pending = append(result.Pending, *cand)
				result.Skipped++
				continue
			}
			created, err := im.createFromCandidate(*cand, zr.zone)
			if err != nil {
				var verr models.ErrValidation
				if errors.As(err, &verr) {
					log.Printf("discovery: zone %s: candidate %q rejected: %v", zr.zone.ID, cand.SuggestedName, err)
					result.Skipped++
					continue
				}
				return result, err
			}
			templates = append(templates, created)
			createdExpressions[models.NormalizedExpression(created.Expression)] = struct{}{}
			result.Templates = append(result.Templates, created)
			result.Imported++
		}
	}
	result.Updated = len(result.UpdatedTemplates)
	return result, nil
}

func (im *Importer) createFromCandidate(cand classifier.Candidate, zone provider.Zone) (models.RuleTemplate, error) {
	description := cand.Description
	if description == "" {
		description = "Discovered on " + zone.Name
	}
	return im.ledger.Create(models.RuleTemplate{
		Name:        cand.SuggestedName,
		Description: description,
		Expression:  cand.Expression,
		Action:      cand.Action,
		Tags:        []string{"auto-discovered", strings.ToLower(cand.Category)},
		Enabled:     true,
	})
}

// fetchAll pulls rules for every zone in concurrent batches with an
// inter-batch delay, dropping failed zones from the analyzed set.
func (im *Importer) fetchAll(ctx context.Context, zones []provider.Zone) []zoneRules {
	out := make([]*zoneRules, len(zones))
	for start := 0; start < len(zones); start += im.batchSize {
		if start > 0 && im.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(im.delay):
			}
		}
		end := start + im.batchSize
		if end > len(zones) {
			end = len(zones)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				zone := zones[i]
				rules, err := im.provider.GetSecurityRules(ctx, zone.ID)
				if err != nil {
					log.Printf("discovery: fetch zone %s (%s) failed: %v", zone.ID, zone.Name, err)
					return
				}
				out[i] = &zoneRules{zone: zone, rules: rules}
			}(i)
		}
		wg.Wait()
	}
	kept := make([]zoneRules, 0, len(out))
	for _, zr := range out {
		if zr != nil {
			kept = append(kept, *zr)
		}
	}
	return kept
}
