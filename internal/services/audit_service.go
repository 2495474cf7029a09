package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/audit-trail/backend/internal/events"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/repositories"
	"go.uber.org/zap"
)

const createdLayout = "2006-01-02 15:04:05"

type AuditService struct {
	auditRepo *repositories.AuditRepo
	publisher events.Publisher
	log       *zap.Logger
}

func NewAuditService(auditRepo *repositories.AuditRepo, publisher events.Publisher, log *zap.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		publisher: publisher,
		log:       log,
	}
}

// Log enriches one audit entry with the request context and persists it.
//
// The request-derived ip/url/user fields are merged into the entry's meta as
// defaults: a key the caller already set wins. Note this is the opposite
// precedence of the backfill formatter, where the derived fields win over
// extra-meta; both behaviors are long-standing and consumers depend on them.
func (s *AuditService) Log(ctx context.Context, entry models.AuditEntry, req models.RequestMeta) (int64, error) {
	event := strings.ToUpper(strings.TrimSpace(entry.Event))
	switch event {
	case models.EventCreate, models.EventEdit, models.EventDelete:
	default:
		return 0, fmt.Errorf("unknown audit event %q", entry.Event)
	}
	if entry.Model == "" || entry.EntityID == "" {
		return 0, fmt.Errorf("audit entry requires model and entity_id")
	}

	entry.Meta = mergeRequestMeta(entry.Meta, req)

	id, err := s.auditRepo.Log(ctx, models.AuditEvent{
		Created:      time.Now().Format(createdLayout),
		Model:        entry.Model,
		Event:        event,
		EntityID:     entry.EntityID,
		SourceIP:     entry.Meta["ip"],
		SourceURL:    entry.Meta["url"],
		SourceUserID: entry.Meta["user"],
	}, buildDeltas(entry.Original, entry.Changed))
	if err != nil {
		return 0, err
	}

	_ = s.publisher.Publish(ctx, events.StreamAudit, events.Event{
		Type: events.EventAuditLogged,
		Payload: map[string]any{
			"id":        id,
			"model":     entry.Model,
			"entity_id": entry.EntityID,
			"event":     event,
			"user":      entry.Meta["user"],
		},
	})

	return id, nil
}

// GetHistory returns the audit events for one entity along with their deltas.
func (s *AuditService) GetHistory(ctx context.Context, model, entityID string, limit, offset int) ([]models.AuditEvent, map[int64][]models.AuditDelta, error) {
	auditEvents, err := s.auditRepo.ListByEntity(ctx, model, entityID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	deltas := make(map[int64][]models.AuditDelta, len(auditEvents))
	for _, e := range auditEvents {
		d, err := s.auditRepo.ListDeltas(ctx, e.ID)
		if err != nil {
			return nil, nil, err
		}
		deltas[e.ID] = d
	}
	return auditEvents, deltas, nil
}

// mergeRequestMeta adds the request-derived fields to the entry's metadata
// as defaults. Keys the caller already set are left alone.
func mergeRequestMeta(meta map[string]string, req models.RequestMeta) map[string]string {
	if meta == nil {
		meta = make(map[string]string, 3)
	}
	for k, v := range map[string]string{"ip": req.IP, "url": req.URL, "user": req.UserID} {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	return meta
}

// buildDeltas flattens the old/new field maps into one delta row per
// property. The key set is the union of both sides; a side missing a key
// stores NULL.
func buildDeltas(original, changed map[string]any) []models.AuditDelta {
	keys := make(map[string]struct{}, len(original)+len(changed))
	for k := range original {
		keys[k] = struct{}{}
	}
	for k := range changed {
		keys[k] = struct{}{}
	}

	deltas := make([]models.AuditDelta, 0, len(keys))
	for k := range keys {
		d := models.AuditDelta{Property: k}
		if v, ok := original[k]; ok {
			d.OldValue = stringify(v)
		}
		if v, ok := changed[k]; ok {
			d.NewValue = stringify(v)
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func stringify(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		// JSON numbers arrive as float64; keep integers un-decorated.
		if t == float64(int64(t)) {
			s = fmt.Sprintf("%d", int64(t))
		} else {
			s = fmt.Sprintf("%v", t)
		}
	case bool:
		s = fmt.Sprintf("%v", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			s = fmt.Sprintf("%v", t)
		} else {
			s = string(raw)
		}
	}
	return &s
}
