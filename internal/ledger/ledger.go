// Package ledger owns the template collection lifecycle. Every mutation
// rewrites the whole collection through the storage port's atomic replace
// write, so readers never observe a partially written collection.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"rulegate/internal/models"
)

// initialVersion is assigned to every newly created template.
const initialVersion = "1.0.0"

// Port is the storage surface the ledger requires.
type Port interface {
	GetTemplateCollection() (models.TemplateCollection, error)
	SaveTemplateCollection(models.TemplateCollection) error
}

// Ledger provides create/update/delete over the template collection.
type Ledger struct {
	store Port
}

// New creates a ledger over the given storage port.
func New(store Port) *Ledger {
	return &Ledger{store: store}
}

// List returns all stored templates.
func (l *Ledger) List() ([]models.RuleTemplate, error) {
	col, err := l.store.GetTemplateCollection()
	if err != nil {
		return nil, err
	}
	return col.Templates, nil
}

// Get returns the template with the given id.
func (l *Ledger) Get(id string) (*models.RuleTemplate, error) {
	col, err := l.store.GetTemplateCollection()
	if err != nil {
		return nil, err
	}
	for i := range col.Templates {
		if col.Templates[i].ID == id {
			t := col.Templates[i]
			return &t, nil
		}
	}
	return nil, models.ErrNotFound("template " + id + " not found")
}

// Create validates and stores a new template at version 1.0.0, assigning
// its id and the next sequential friendlyId.
func (l *Ledger) Create(tmpl models.RuleTemplate) (models.RuleTemplate, error) {
	tmpl.Normalize()
	if err := tmpl.Validate(); err != nil {
		return models.RuleTemplate{}, err
	}
	col, err := l.store.GetTemplateCollection()
	if err != nil {
		return models.RuleTemplate{}, err
	}
	for _, existing := range col.Templates {
		if strings.EqualFold(existing.Name, tmpl.Name) {
			return models.RuleTemplate{}, models.ErrValidation("template name already exists: " + tmpl.Name)
		}
	}
	now := time.Now().UTC()
	tmpl.ID = uuid.NewString()
	tmpl.FriendlyID = models.NextFriendlyID(col.Templates)
	tmpl.Version = initialVersion
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	col.Templates = append(col.Templates, tmpl)
	if err := l.store.SaveTemplateCollection(col); err != nil {
		return models.RuleTemplate{}, err
	}
	return tmpl, nil
}

// UpdateFields carries the mutable template fields; nil pointers leave the
// stored value untouched.
type UpdateFields struct {
	Name             *string
	Description      *string
	Expression       *string
	Action           *models.RuleAction
	ActionParameters map[string]interface{}
	Tags             []string
	ApplicableTags   []string
	ExcludedDomains  []string
	Enabled          *bool
	Priority         *int
}

// Update applies the provided fields to the stored template. The version's
// minor segment is bumped when, and only when, the normalized expression or
// the action changes; every other edit leaves the version alone.
func (l *Ledger) Update(id string, fields UpdateFields) (models.RuleTemplate, bool, error) {
	col, err := l.store.GetTemplateCollection()
	if err != nil {
		return models.RuleTemplate{}, false, err
	}
	idx := -1
	for i := range col.Templates {
		if col.Templates[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.RuleTemplate{}, false, models.ErrNotFound("template " + id + " not found")
	}
	tmpl := col.Templates[idx]

	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return models.RuleTemplate{}, false, models.ErrValidation("name must be provided")
		}
		for i, other := range col.Templates {
			if i != idx && strings.EqualFold(other.Name, name) {
				return models.RuleTemplate{}, false, models.ErrValidation("template name already exists: " + name)
			}
		}
		tmpl.Name = name
	}
	if fields.Description != nil {
		tmpl.Description = strings.TrimSpace(*fields.Description)
	}

	versionChanged := false
	if fields.Expression != nil {
		next := strings.TrimSpace(*fields.Expression)
		if next == "" {
			return models.RuleTemplate{}, false, models.ErrValidation("expression must be provided")
		}
		if models.NormalizedExpression(next) != models.NormalizedExpression(tmpl.Expression) {
			versionChanged = true
		}
		tmpl.Expression = next
	}
	if fields.Action != nil {
		if !fields.Action.Valid() {
			return models.RuleTemplate{}, false, models.ErrValidation("invalid rule action: " + string(*fields.Action))
		}
		if *fields.Action != tmpl.Action {
			versionChanged = true
		}
		tmpl.Action = *fields.Action
	}
	if fields.ActionParameters != nil {
		tmpl.ActionParameters = fields.ActionParameters
	}
	if fields.Tags != nil {
		tmpl.Tags = fields.Tags
	}
	if fields.ApplicableTags != nil {
		tmpl.ApplicableTags = fields.ApplicableTags
	}
	if fields.ExcludedDomains != nil {
		tmpl.ExcludedDomains = fields.ExcludedDomains
	}
	if fields.Enabled != nil {
		tmpl.Enabled = *fields.Enabled
	}
	if fields.Priority != nil {
		tmpl.Priority = *fields.Priority
	}

	tmpl.Normalize()
	if versionChanged {
		tmpl.Version = models.BumpMinor(tmpl.Version)
	}
	tmpl.UpdatedAt = time.Now().UTC()
	col.Templates[idx] = tmpl
	if err := l.store.SaveTemplateCollection(col); err != nil {
		return models.RuleTemplate{}, false, err
	}
	return tmpl, versionChanged, nil
}

// Delete removes the template and returns the deleted record. The ledger
// does not re-verify domain usage: callers must refuse deletion themselves
// when the resolver reports in-use domains.
func (l *Ledger) Delete(id string) (models.RuleTemplate, error) {
	col, err := l.store.GetTemplateCollection()
	if err != nil {
		return models.RuleTemplate{}, err
	}
	idx := -1
	for i := range col.Templates {
		if col.Templates[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.RuleTemplate{}, models.ErrNotFound("template " + id + " not found")
	}
	deleted := col.Templates[idx]
	col.Templates = append(col.Templates[:idx], col.Templates[idx+1:]...)
	if err := l.store.SaveTemplateCollection(col); err != nil {
		return models.RuleTemplate{}, err
	}
	return deleted, nil
}
