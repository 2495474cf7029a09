package etl

import (
	"reflect"
	"testing"

	"github.com/audit-trail/backend/internal/models"
)

func strPtr(s string) *string { return &s }

func deltaRow(auditID int64, prop string, old, new *string) models.DeltaRow {
	return models.DeltaRow{
		Event: models.AuditEvent{ID: auditID, Model: "Article", Event: "EDIT"},
		Delta: models.AuditDelta{AuditID: auditID, Property: prop, OldValue: old, NewValue: new},
	}
}

func TestExtractKeySetsMatch(t *testing.T) {
	e := NewExtractor(nil)

	cs := e.Extract([]models.DeltaRow{
		deltaRow(1, "name", strPtr("A"), strPtr("B")),
		deltaRow(1, "age", strPtr("10"), strPtr("20")),
		deltaRow(1, "email", nil, strPtr("a@b.c")),
	})

	if len(cs.Original) != 3 || len(cs.Changed) != 3 {
		t.Fatalf("key counts: original=%d changed=%d, want 3/3", len(cs.Original), len(cs.Changed))
	}
	for k := range cs.Original {
		if _, ok := cs.Changed[k]; !ok {
			t.Errorf("key %q in original but not in changed", k)
		}
	}
	if cs.Original["email"] != nil {
		t.Errorf("NULL old value should extract as nil, got %v", cs.Original["email"])
	}
}

func TestExtractLastWinsOnDuplicateProperty(t *testing.T) {
	e := NewExtractor(nil)

	cs := e.Extract([]models.DeltaRow{
		deltaRow(1, "name", strPtr("first"), strPtr("x")),
		deltaRow(1, "name", strPtr("second"), strPtr("y")),
	})

	if cs.Original["name"] != "second" || cs.Changed["name"] != "y" {
		t.Errorf("duplicate property not last-wins: original=%v changed=%v",
			cs.Original["name"], cs.Changed["name"])
	}
}

func TestExtractUsesFirstRowParent(t *testing.T) {
	e := NewExtractor(nil)

	rows := []models.DeltaRow{
		deltaRow(42, "a", nil, strPtr("1")),
		deltaRow(42, "b", nil, strPtr("2")),
	}
	rows[0].Event.EntityID = "first"
	rows[1].Event.EntityID = "second"

	cs := e.Extract(rows)
	if cs.Event.EntityID != "first" {
		t.Errorf("parent fields should come from the first row, got %q", cs.Event.EntityID)
	}
}

func TestNormalization(t *testing.T) {
	tests := []struct {
		name string
		prop string
		old  *string
		want any
	}{
		{"reference list decodes", "Tag", strPtr("3,4,5"), []int{3, 4, 5}},
		{"zero date becomes nil", "modified", strPtr("0000-00-00 00:00:00"), nil},
		{"zero date without time", "published", strPtr("0000-00-00"), nil},
		{"plain value passes through", "name", strPtr("hello"), "hello"},
		{"numeric string passes through", "age", strPtr("42"), "42"},
		{"capitalized non-list passes through", "Tag", strPtr("red,green"), "red,green"},
		{"capitalized bare number passes through", "Tag", strPtr("7"), "7"},
		{"lower-case list passes through", "tags", strPtr("3,4,5"), "3,4,5"},
		{"null stays nil", "name", nil, nil},
		{"valid date passes through", "modified", strPtr("2019-05-01 10:00:00"), "2019-05-01 10:00:00"},
	}

	e := NewExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := e.Extract([]models.DeltaRow{deltaRow(1, tt.prop, tt.old, tt.old)})
			got := cs.Original[tt.prop]
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalize(%q, %v) = %#v, want %#v", tt.prop, tt.old, got, tt.want)
			}
			// Both sides normalize identically.
			if !reflect.DeepEqual(cs.Changed[tt.prop], tt.want) {
				t.Errorf("changed side diverged: %#v", cs.Changed[tt.prop])
			}
		})
	}
}

func TestExplicitDecoderTableWinsOverHeuristic(t *testing.T) {
	e := NewExtractor(map[string]DecoderFunc{
		"tags": DecodeIntList,
		"Name": func(v string) any { return "decoded:" + v },
	})

	cs := e.Extract([]models.DeltaRow{
		deltaRow(1, "tags", strPtr("1,2"), strPtr("1,2")),
		deltaRow(1, "Name", strPtr("8,9"), strPtr("8,9")),
	})

	if !reflect.DeepEqual(cs.Original["tags"], []int{1, 2}) {
		t.Errorf("configured lower-case field not decoded: %#v", cs.Original["tags"])
	}
	if cs.Original["Name"] != "decoded:8,9" {
		t.Errorf("explicit decoder should shadow the heuristic: %#v", cs.Original["Name"])
	}
}

func TestDecodeIntList(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"3,4,5", []int{3, 4, 5}},
		{"1", []int{1}},
		{" 1, 2 ", []int{1, 2}},
		{"a,b", "a,b"}, // non-numeric falls back to the raw value
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DecodeIntList(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeIntList(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}
