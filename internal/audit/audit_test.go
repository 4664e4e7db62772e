package audit

import (
	"fmt"
	"testing"

	"rulegate/internal/models"
	"rulegate/internal/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return New(st)
}

func TestAppendAssignsIdentity(t *testing.T) {
	l := newTestLog(t)
	entry, err := l.Append(models.ApplicationLogEntry{TemplateID: "t1", TemplateName: "Block SQLi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Fatalf("identity not assigned: %+v", entry)
	}
	entries, err := l.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].TemplateID != "t1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAppendEvictsOldestBeyondCap(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < MaxEntries+1; i++ {
		if _, err := l.Append(models.ApplicationLogEntry{TemplateID: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	entries, err := l.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != MaxEntries {
		t.Fatalf("expected %d entries, got %d", MaxEntries, len(entries))
	}
	if entries[0].TemplateID != "t1" {
		t.Fatalf("oldest entry not evicted: first is %s", entries[0].TemplateID)
	}
	if entries[len(entries)-1].TemplateID != fmt.Sprintf("t%d", MaxEntries) {
		t.Fatalf("newest entry missing: last is %s", entries[len(entries)-1].TemplateID)
	}
}
