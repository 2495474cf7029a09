package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/audit-trail/backend/internal/etl"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// fakeTransport answers every request with a canned response and records the
// last request body, letting the bulk payload be inspected without a cluster.
type fakeTransport struct {
	status   int
	body     string
	lastBody []byte
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		t.lastBody, _ = io.ReadAll(req.Body)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: t.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(t.body)),
	}, nil
}

func newTestStore(t *testing.T, transport *fakeTransport) *ElasticStore {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://elastic.test:9200"},
		Transport: transport,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &ElasticStore{client: client, log: zap.NewNop()}
}

func sampleDocs() []etl.Document {
	return []etl.Document{
		{
			ID:    "1",
			Index: "audit-logs-2019.05.01",
			Type:  "articles",
			Body: etl.DocumentBody{
				Timestamp:   "2019-05-01T10:00:00",
				Transaction: "1",
				Type:        "update",
				PrimaryKey:  "55",
				Original:    map[string]any{"name": "A"},
				Changed:     map[string]any{"name": "B"},
				Meta:        map[string]string{"ip": "1.2.3.4"},
			},
		},
		{ID: "2", Index: "audit-logs-2019.05.02", Type: "comments"},
	}
}

func TestBulkIndexPayload(t *testing.T) {
	transport := &fakeTransport{status: http.StatusOK, body: `{"errors":false,"items":[]}`}
	store := newTestStore(t, transport)

	if err := store.BulkIndex(context.Background(), sampleDocs()); err != nil {
		t.Fatal(err)
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(transport.lastBody))
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bulk body line is not json: %v", err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 4 {
		t.Fatalf("bulk body has %d lines, want 4 (action+source per document)", len(lines))
	}

	action, ok := lines[0]["index"].(map[string]any)
	if !ok {
		t.Fatalf("first line is not an index action: %v", lines[0])
	}
	if action["_index"] != "audit-logs-2019.05.01" || action["_id"] != "1" {
		t.Errorf("action metadata = %v", action)
	}

	source := lines[1]
	if source["model"] != "articles" {
		t.Errorf("document category not carried in source: %v", source["model"])
	}
	if source["type"] != "update" || source["primary_key"] != "55" {
		t.Errorf("source body = %v", source)
	}

	second, _ := lines[2]["index"].(map[string]any)
	if second["_index"] != "audit-logs-2019.05.02" || second["_id"] != "2" {
		t.Errorf("second action addresses wrong index: %v", second)
	}
}

func TestBulkIndexItemFailure(t *testing.T) {
	transport := &fakeTransport{
		status: http.StatusOK,
		body:   `{"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}]}`,
	}
	store := newTestStore(t, transport)

	err := store.BulkIndex(context.Background(), sampleDocs())
	if err == nil {
		t.Fatal("want error on item failures")
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error should carry the first item failure: %v", err)
	}
}

func TestBulkIndexRejectedRequest(t *testing.T) {
	transport := &fakeTransport{status: http.StatusServiceUnavailable, body: `{"error":"unavailable"}`}
	store := newTestStore(t, transport)

	if err := store.BulkIndex(context.Background(), sampleDocs()); err == nil {
		t.Fatal("want error on rejected bulk request")
	}
}
