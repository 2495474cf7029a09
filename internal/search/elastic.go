package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/audit-trail/backend/internal/etl"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// ElasticStore writes audit documents to Elasticsearch through the bulk API.
type ElasticStore struct {
	client *elasticsearch.Client
	log    *zap.Logger
}

func NewElasticStore(addresses []string, log *zap.Logger) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping: %s", res.String())
	}

	log.Info("elasticsearch connected", zap.Strings("addresses", addresses))
	return &ElasticStore{client: client, log: log}, nil
}

// bulkSource is the indexed form of a document. Mapping types are gone in
// Elasticsearch 8, so the document category rides inside the source.
type bulkSource struct {
	etl.DocumentBody
	Model string `json:"model"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndex submits the whole batch as one bulk request. Each document
// addresses its own daily index and carries the audit event id as _id, so
// re-running a backfill overwrites rather than duplicates.
func (s *ElasticStore) BulkIndex(ctx context.Context, docs []etl.Document) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		action := map[string]map[string]string{
			"index": {"_index": doc.Index, "_id": doc.ID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(bulkSource{DocumentBody: doc.Body, Model: doc.Type}); err != nil {
			return fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
	}

	res, err := s.client.Bulk(bytes.NewReader(body.Bytes()), s.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request rejected: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		return fmt.Errorf("bulk response contains item failures: %s", firstItemError(parsed))
	}
	return nil
}

func firstItemError(r bulkResponse) string {
	for _, item := range r.Items {
		for _, op := range item {
			if op.Error != nil {
				return fmt.Sprintf("%s: %s (status %d)", op.Error.Type, op.Error.Reason, op.Status)
			}
		}
	}
	return "unknown item failure"
}
