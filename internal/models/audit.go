package models

// Legacy audit event kinds as stored in the audits table.
// Matching is case-insensitive: old writers stored "edit" and "EDIT" alike.
const (
	EventCreate = "CREATE"
	EventEdit   = "EDIT"
	EventDelete = "DELETE"
)

// AuditEvent is one row of the audits table: the parent record of a
// logical change to a single entity.
type AuditEvent struct {
	ID       int64  `json:"id"`
	Created  string `json:"created"` // "2006-01-02 15:04:05"; legacy rows contain garbage, kept raw
	Model    string `json:"model"`
	Event    string `json:"event"`
	EntityID string `json:"entity_id"`

	// Request context attached at write time by the enrichment middleware.
	SourceIP     string `json:"source_ip"`
	SourceURL    string `json:"source_url"`
	SourceUserID string `json:"source_user_id"`
}

// AuditDelta is one row of the audit_deltas table: a single changed field
// belonging to one AuditEvent. Old/new are nullable; a field with no prior
// value (first audit of an entity) has a NULL old side.
type AuditDelta struct {
	ID       int64   `json:"id"`
	AuditID  int64   `json:"audit_id"`
	Property string  `json:"property"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// DeltaRow is one row of the audits x audit_deltas join as streamed for the
// backfill, ordered by event id then delta id. Rows sharing an event id are
// contiguous in the stream.
type DeltaRow struct {
	Event AuditEvent
	Delta AuditDelta
}

// AuditEntry is the write model accepted over the API: one logical change
// with its per-field old/new values and caller-supplied metadata.
type AuditEntry struct {
	Model    string            `json:"model"`
	EntityID string            `json:"entity_id"`
	Event    string            `json:"event"`
	Original map[string]any    `json:"original"`
	Changed  map[string]any    `json:"changed"`
	Meta     map[string]string `json:"meta"`
}

// RequestMeta is the request context captured by the HTTP middleware and
// merged into every entry logged during that request.
type RequestMeta struct {
	IP     string
	URL    string
	UserID string
}
