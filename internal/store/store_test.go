package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rulegate/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return st
}

func TestTemplateCollectionRoundTrip(t *testing.T) {
	st := newTestStore(t)

	col, err := st.GetTemplateCollection()
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if len(col.Templates) != 0 {
		t.Fatalf("expected empty collection, got %d", len(col.Templates))
	}

	col.Templates = append(col.Templates, models.RuleTemplate{
		ID:         "t1",
		FriendlyID: "R001",
		Name:       "Block SQLi",
		Version:    "1.0.0",
		Expression: `http.request.uri.query contains "union select"`,
		Action:     models.ActionBlock,
	})
	if err := st.SaveTemplateCollection(col); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.GetTemplateCollection()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Templates) != 1 || got.Templates[0].FriendlyID != "R001" {
		t.Fatalf("unexpected collection: %+v", got)
	}
	if got.LastUpdated.IsZero() {
		t.Fatal("LastUpdated not stamped")
	}
}

func TestSaveTemplateCollectionLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	st, err := New(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	col := models.TemplateCollection{Templates: []models.RuleTemplate{{ID: "t1", Name: "a"}}}
	if err := st.SaveTemplateCollection(col); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "templates"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "templates.json" {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestDomainRuleStateRoundTrip(t *testing.T) {
	st := newTestStore(t)
	state, err := st.GetDomainRuleState()
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	state.Zones["z1"] = models.DomainRuleStatus{
		ZoneID:       "z1",
		DomainName:   "example.com",
		LastAnalyzed: time.Now().UTC(),
		AppliedRules: []models.AppliedRule{{FriendlyID: "R001", Version: "1.0.0", Status: models.AppliedRuleActive}},
	}
	if err := st.SaveDomainRuleState(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.GetDomainRuleState()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Zones["z1"].DomainName != "example.com" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestApplicationLogRoundTrip(t *testing.T) {
	st := newTestStore(t)
	entries := []models.ApplicationLogEntry{{ID: "e1", TemplateID: "t1", Timestamp: time.Now().UTC()}}
	if err := st.SaveApplicationLog(entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.GetApplicationLog()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("unexpected log: %+v", got)
	}
}

func TestUserLookup(t *testing.T) {
	st := newTestStore(t)
	if err := st.UpsertUser(models.User{ID: "u1", Email: "Ops@Example.com", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	user, err := st.FindUserByEmail("ops@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, err := st.FindUserByEmail("nobody@example.com"); err == nil {
		t.Fatal("expected not found")
	}
	if err := st.DeleteUser("u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetUserByID("u1"); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestDeleteUserUnknownID(t *testing.T) {
	st := newTestStore(t)
	if err := st.UpsertUser(models.User{ID: "u1", Email: "ops@example.com", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := st.DeleteUser("nope")
	if err == nil {
		t.Fatal("expected error for unknown id")
	}
	var notFound models.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if _, err := st.GetUserByID("u1"); err != nil {
		t.Fatalf("existing user must be untouched: %v", err)
	}
}
