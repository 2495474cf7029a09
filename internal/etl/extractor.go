package etl

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/audit-trail/backend/internal/models"
)

// zeroDatePrefix marks datetime values the legacy writer stored for
// "no date". They are normalized away instead of leaking into the index.
const zeroDatePrefix = "0000-00-00"

// ChangeSet is a fully reconstructed audit event: the parent fields plus the
// old and new value of every property touched by the event.
type ChangeSet struct {
	Event    models.AuditEvent
	Original map[string]any
	Changed  map[string]any
}

// DecoderFunc decodes a raw stored value of a known field into its real shape.
type DecoderFunc func(value string) any

// DecodeIntList decodes the legacy many-to-many reference encoding: a
// comma-separated list of numeric ids stored as a single string.
func DecodeIntList(value string) any {
	parts := strings.Split(value, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return value
		}
		ids = append(ids, n)
	}
	return ids
}

// Extractor turns a group of delta rows into a ChangeSet.
//
// Fields listed in the decoder table are decoded explicitly. Fields without
// an entry fall back to the legacy convention: a property starting with an
// upper-case letter whose value is a comma-delimited digit string is a
// many-to-many reference list. After decoding, zero-date sentinels on either
// side become nil.
type Extractor struct {
	decoders map[string]DecoderFunc
}

func NewExtractor(decoders map[string]DecoderFunc) *Extractor {
	return &Extractor{decoders: decoders}
}

// Extract builds the ChangeSet for one non-empty group. Duplicate properties
// within a group are collapsed last-wins. The parent fields are taken from
// the group's first row.
func (e *Extractor) Extract(group []models.DeltaRow) ChangeSet {
	cs := ChangeSet{
		Original: make(map[string]any, len(group)),
		Changed:  make(map[string]any, len(group)),
	}
	if len(group) == 0 {
		return cs
	}
	cs.Event = group[0].Event

	indexed := make(map[string]models.AuditDelta, len(group))
	for _, row := range group {
		indexed[row.Delta.Property] = row.Delta
	}

	for prop, delta := range indexed {
		cs.Original[prop] = e.normalize(prop, delta.OldValue)
		cs.Changed[prop] = e.normalize(prop, delta.NewValue)
	}
	return cs
}

func (e *Extractor) normalize(prop string, value *string) any {
	if value == nil {
		return nil
	}

	var out any = *value
	if dec, ok := e.decoders[prop]; ok {
		out = dec(*value)
	} else if isLegacyReferenceKey(prop) && isDelimitedDigits(*value) {
		out = DecodeIntList(*value)
	}

	if s, ok := out.(string); ok && strings.HasPrefix(s, zeroDatePrefix) {
		return nil
	}
	return out
}

func isLegacyReferenceKey(prop string) bool {
	r, _ := utf8.DecodeRuneInString(prop)
	return unicode.IsUpper(r)
}

func isDelimitedDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	// Require an actual list: a bare number is not reference-encoded.
	return strings.Contains(s, ",")
}
