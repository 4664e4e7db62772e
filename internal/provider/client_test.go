package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rulegate/internal/models"
)

func TestListZonesPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var zones []Zone
		if page == "1" {
			zones = []Zone{{ID: "z1", Name: "one.example.com"}}
		} else {
			zones = []Zone{{ID: "z2", Name: "two.example.com"}}
		}
		resp := map[string]interface{}{
			"result": zones,
			"result_info": map[string]int{
				"page":        1,
				"total_pages": 2,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	zones, err := ListAllZones(context.Background(), c, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(zones) != 2 || zones[0].ID != "z1" || zones[1].ID != "z2" {
		t.Fatalf("unexpected zones: %+v", zones)
	}
}

func TestGetSecurityRulesParsesTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]interface{}{
			"result": map[string]interface{}{
				"id":    "rs1",
				"phase": "http_request_firewall_custom",
				"rules": []map[string]interface{}{
					{
						"id":          "r1",
						"expression":  `ip.geoip.country in {"CN"}`,
						"action":      "block",
						"description": "[R001 v1.0.0] Geo Block",
						"enabled":     true,
						"modified_on": "2026-08-01 10:30:00",
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	rules, err := c.GetSecurityRules(context.Background(), "z1")
	if err != nil {
		t.Fatalf("get rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(rules))
	}
	if rules[0].Action != models.ActionBlock {
		t.Fatalf("unexpected action %q", rules[0].Action)
	}
	if rules[0].ModifiedOn.IsZero() {
		t.Fatal("modified_on not parsed")
	}
}

func TestDoJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"id": "rs1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	if _, err := c.GetSecurityRules(context.Background(), "z1"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("expected at least 3 calls, got %d", calls)
	}
}

func TestRemoveRuleNotFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	err := c.RemoveRule(context.Background(), "z1", "r1")
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
}
