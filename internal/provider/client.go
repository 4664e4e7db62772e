package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cenkalti/backoff/v4"

	"rulegate/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client is the HTTP implementation of the provider API. Transient upstream
// failures (429, 5xx, network errors) are retried with exponential backoff.
type Client struct {
	baseURL    string
	token      string
	client     *http.Client
	maxElapsed time.Duration
}

// NewClient creates a provider client for the given API base URL and token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: 30 * time.Second,
	}
}

type zoneListEnvelope struct {
	Result     []Zone `json:"result"`
	ResultInfo struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"result_info"`
}

// wireRule carries ModifiedOn as a raw string: the provider is not
// consistent about its timestamp format, so it is parsed tolerantly.
type wireRule struct {
	ID               string                 `json:"id"`
	Expression       string                 `json:"expression"`
	Action           models.RuleAction      `json:"action"`
	ActionParameters map[string]interface{} `json:"action_parameters,omitempty"`
	Description      string                 `json:"description,omitempty"`
	Enabled          bool                   `json:"enabled"`
	ModifiedOn       string                 `json:"modified_on,omitempty"`
}

type rulesetEnvelope struct {
	Result struct {
		ID    string     `json:"id"`
		Phase string     `json:"phase,omitempty"`
		Rules []wireRule `json:"rules"`
	} `json:"result"`
}

func (w wireRule) toRule() Rule {
	r := Rule{
		ID:               w.ID,
		Expression:       w.Expression,
		Action:           w.Action,
		ActionParameters: w.ActionParameters,
		Description:      w.Description,
		Enabled:          w.Enabled,
	}
	if w.ModifiedOn != "" {
		if ts, err := dateparse.ParseIn(w.ModifiedOn, time.UTC); err == nil {
			r.ModifiedOn = ts.UTC()
		}
	}
	return r
}

// ListZones returns one page of zones plus the total page count.
func (c *Client) ListZones(ctx context.Context, page, perPage int) ([]Zone, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	url := fmt.Sprintf("%s/zones?page=%d&per_page=%d", c.baseURL, page, perPage)
	var envelope zoneListEnvelope
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &envelope); err != nil {
		return nil, 0, &Error{Op: "list zones", Err: err}
	}
	totalPages := envelope.ResultInfo.TotalPages
	if totalPages <= 0 {
		totalPages = 1
	}
	return envelope.Result, totalPages, nil
}

// GetSecurityRules fetches the custom-phase rules for a zone.
func (c *Client) GetSecurityRules(ctx context.Context, zoneID string) ([]Rule, error) {
	url := fmt.Sprintf("%s/zones/%s/security/rules", c.baseURL, zoneID)
	var envelope rulesetEnvelope
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &envelope); err != nil {
		return nil, &Error{ZoneID: zoneID, Op: "get rules", Err: err}
	}
	rules := make([]Rule, 0, len(envelope.Result.Rules))
	for _, w := range envelope.Result.Rules {
		rules = append(rules, w.toRule())
	}
	return rules, nil
}

// AddRule creates a rule on the zone and returns the resulting ruleset.
func (c *Client) AddRule(ctx context.Context, zoneID string, rule Rule) (Ruleset, error) {
	url := fmt.Sprintf("%s/zones/%s/security/rules", c.baseURL, zoneID)
	payload, err := json.Marshal(rule)
	if err != nil {
		return Ruleset{}, &Error{ZoneID: zoneID, Op: "add rule", Err: err}
	}
	var envelope rulesetEnvelope
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &envelope); err != nil {
		return Ruleset{}, &Error{ZoneID: zoneID, Op: "add rule", Err: err}
	}
	out := Ruleset{ID: envelope.Result.ID, Phase: envelope.Result.Phase}
	for _, w := range envelope.Result.Rules {
		out.Rules = append(out.Rules, w.toRule())
	}
	return out, nil
}

// RemoveRule deletes a rule from the zone.
func (c *Client) RemoveRule(ctx context.Context, zoneID string, ruleID string) error {
	url := fmt.Sprintf("%s/zones/%s/security/rules/%s", c.baseURL, zoneID, ruleID)
	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return &Error{ZoneID: zoneID, Op: "remove rule", Err: err}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrZoneNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("transient status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
