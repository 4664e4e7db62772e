// Package catalog ships the built-in starter templates seeded into an
// empty installation.
package catalog

import (
	"errors"
	"log"

	"rulegate/internal/ledger"
	"rulegate/internal/models"
)

var builtinTemplates = []models.RuleTemplate{
	{
		Name:        "Block SQL Injection",
		Description: "Blocks requests whose query string carries common SQL injection payloads.",
		Expression:  `lower(http.request.uri.query) contains "union select" or lower(http.request.uri.query) contains "information_schema"`,
		Action:      models.ActionBlock,
		Tags:        []string{"owasp", "sqli"},
		Enabled:     true,
	},
	{
		Name:        "Block XSS Payloads",
		Description: "Blocks requests carrying script injection payloads in the query string.",
		Expression:  `lower(http.request.uri.query) contains "<script" or lower(http.request.uri.query) contains "javascript:"`,
		Action:      models.ActionBlock,
		Tags:        []string{"owasp", "xss"},
		Enabled:     true,
	},
	{
		Name:        "Block Path Traversal",
		Description: "Blocks directory traversal attempts against the request path.",
		Expression:  `http.request.uri.path contains "../" or lower(http.request.uri.path) contains "%2e%2e"`,
		Action:      models.ActionBlock,
		Tags:        []string{"owasp", "traversal"},
		Enabled:     true,
	},
	{
		Name:        "Challenge Unverified Bots",
		Description: "Challenges automated clients that are not on the provider's verified bot list.",
		Expression:  `cf.client.bot and not cf.verified_bot_category in {"Search Engine Crawler"}`,
		Action:      models.ActionChallenge,
		Tags:        []string{"bot"},
		Enabled:     true,
	},
}

// Builtin returns a copy of the built-in template definitions.
func Builtin() []models.RuleTemplate {
	out := make([]models.RuleTemplate, len(builtinTemplates))
	copy(out, builtinTemplates)
	return out
}

// Seed creates the built-in templates through the ledger when the
// collection is empty. A non-empty collection is left untouched so seeding
// stays idempotent across restarts.
func Seed(l *ledger.Ledger) (int, error) {
	existing, err := l.List()
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	created := 0
	for _, tmpl := range Builtin() {
		if _, err := l.Create(tmpl); err != nil {
			if errors.As(err, new(models.ErrValidation)) {
				log.Printf("catalog: skipping builtin %q: %v", tmpl.Name, err)
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
