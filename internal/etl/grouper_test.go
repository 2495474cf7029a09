package etl

import (
	"testing"

	"github.com/audit-trail/backend/internal/models"
)

func row(auditID int64, prop string) models.DeltaRow {
	return models.DeltaRow{
		Event: models.AuditEvent{ID: auditID},
		Delta: models.AuditDelta{AuditID: auditID, Property: prop},
	}
}

func TestGrouperEmitsOnIDChange(t *testing.T) {
	var g Grouper

	if _, ok := g.Push(row(1, "name")); ok {
		t.Fatal("first row should not emit a group")
	}
	if _, ok := g.Push(row(1, "age")); ok {
		t.Fatal("same-id row should not emit a group")
	}

	group, ok := g.Push(row(2, "name"))
	if !ok {
		t.Fatal("id change should emit the previous group")
	}
	if len(group) != 2 {
		t.Fatalf("emitted group has %d rows, want 2", len(group))
	}
	if group[0].Delta.Property != "name" || group[1].Delta.Property != "age" {
		t.Errorf("group order broken: %q, %q", group[0].Delta.Property, group[1].Delta.Property)
	}
}

func TestGrouperTailOnlyViaFlush(t *testing.T) {
	var g Grouper

	g.Push(row(7, "a"))
	g.Push(row(7, "b"))

	tail := g.Flush()
	if len(tail) != 2 {
		t.Fatalf("flush returned %d rows, want 2", len(tail))
	}
	if again := g.Flush(); len(again) != 0 {
		t.Errorf("second flush returned %d rows, want 0", len(again))
	}
}

func TestGrouperEmptyInput(t *testing.T) {
	var g Grouper
	if tail := g.Flush(); len(tail) != 0 {
		t.Errorf("flush of untouched grouper returned %d rows", len(tail))
	}
}

// Groups plus the flushed tail must partition the input exactly: no row
// dropped, no row duplicated, every group a maximal run of one id.
func TestGrouperPartitionsInput(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
	}{
		{"single group", []int64{1, 1, 1}},
		{"several groups", []int64{1, 1, 2, 3, 3, 3, 4}},
		{"all singletons", []int64{1, 2, 3, 4, 5}},
		{"one row", []int64{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Grouper
			var groups [][]models.DeltaRow

			for i, id := range tt.ids {
				if group, ok := g.Push(row(id, string(rune('a'+i)))); ok {
					groups = append(groups, group)
				}
			}
			if tail := g.Flush(); len(tail) > 0 {
				groups = append(groups, tail)
			}

			var flattened []int64
			for _, group := range groups {
				first := group[0].Event.ID
				for _, r := range group {
					if r.Event.ID != first {
						t.Errorf("group mixes ids %d and %d", first, r.Event.ID)
					}
					flattened = append(flattened, r.Event.ID)
				}
			}

			if len(flattened) != len(tt.ids) {
				t.Fatalf("got %d rows across groups, want %d", len(flattened), len(tt.ids))
			}
			for i, id := range tt.ids {
				if flattened[i] != id {
					t.Errorf("row %d: got id %d, want %d", i, flattened[i], id)
				}
			}

			// Maximal runs: adjacent groups must have different ids.
			for i := 1; i < len(groups); i++ {
				if groups[i][0].Event.ID == groups[i-1][0].Event.ID {
					t.Errorf("groups %d and %d share id %d", i-1, i, groups[i][0].Event.ID)
				}
			}
		})
	}
}
