package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
)

// createdLayout is the timestamp layout the legacy writer used for the
// audits.created column.
const createdLayout = "2006-01-02 15:04:05"

// dailyBucketLayout renders the dash-prefixed date suffix substituted into
// the index template, one index per day.
const dailyBucketLayout = "-2006.01.02"

// FormatError reports an audit event whose created timestamp cannot be
// parsed. The run aborts on it: a record without a valid date cannot be
// routed to a daily index.
type FormatError struct {
	AuditID int64
	Created string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format audit %d: bad created timestamp %q: %v", e.AuditID, e.Created, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// DocumentBody is the indexed source of one audit event document.
type DocumentBody struct {
	Timestamp   string            `json:"@timestamp"`
	Transaction string            `json:"transaction"`
	Type        string            `json:"type"`
	PrimaryKey  string            `json:"primary_key"`
	Original    map[string]any    `json:"original"`
	Changed     map[string]any    `json:"changed"`
	Meta        map[string]string `json:"meta"`
}

// Document is one destination artifact: its addressing metadata plus the body.
type Document struct {
	ID    string
	Index string
	Type  string
	Body  DocumentBody
}

// Formatter maps change sets to destination documents.
//
// indexTemplate must contain one %s verb, replaced with the event's creation
// date as "-YYYY.MM.DD" so the destination rotates daily. typeOverrides maps
// model names to explicit document types; models without an override get the
// tableized plural of their name. extraMeta is stamped into every document's
// meta envelope, but the fields derived from the source row (ip, url, user)
// win on key collision.
type Formatter struct {
	indexTemplate string
	typeOverrides map[string]string
	extraMeta     map[string]string
}

func NewFormatter(indexTemplate string, typeOverrides, extraMeta map[string]string) *Formatter {
	return &Formatter{
		indexTemplate: indexTemplate,
		typeOverrides: typeOverrides,
		extraMeta:     extraMeta,
	}
}

func (f *Formatter) Format(cs ChangeSet) (Document, error) {
	ts, err := time.Parse(createdLayout, cs.Event.Created)
	if err != nil {
		return Document{}, &FormatError{AuditID: cs.Event.ID, Created: cs.Event.Created, Err: err}
	}

	meta := make(map[string]string, len(f.extraMeta)+3)
	for k, v := range f.extraMeta {
		meta[k] = v
	}
	meta["ip"] = cs.Event.SourceIP
	meta["url"] = cs.Event.SourceURL
	meta["user"] = cs.Event.SourceUserID

	return Document{
		ID:    strconv.FormatInt(cs.Event.ID, 10),
		Index: fmt.Sprintf(f.indexTemplate, ts.Format(dailyBucketLayout)),
		Type:  f.documentType(cs.Event.Model),
		Body: DocumentBody{
			Timestamp:   ts.Format("2006-01-02T15:04:05"),
			Transaction: strconv.FormatInt(cs.Event.ID, 10),
			Type:        eventAction(cs.Event.Event),
			PrimaryKey:  cs.Event.EntityID,
			Original:    cs.Original,
			Changed:     cs.Changed,
			Meta:        meta,
		},
	}, nil
}

func (f *Formatter) documentType(model string) string {
	if t, ok := f.typeOverrides[model]; ok {
		return t
	}
	return inflection.Plural(toSnake(model))
}

// eventAction maps the stored event kind to the action name indexed with the
// document. Edits are indexed as "update"; everything else keeps its name,
// lower-cased.
func eventAction(event string) string {
	if strings.EqualFold(event, "EDIT") {
		return "update"
	}
	return strings.ToLower(event)
}

// toSnake converts a CamelCase model name to snake_case, keeping acronym
// runs together ("APIToken" -> "api_token").
func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prev < 'A' || prev > 'Z' || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
