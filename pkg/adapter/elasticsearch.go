package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// ElasticsearchAdapter exercises an Elasticsearch index as one side of a
// sync job. GetUpdates runs a range search sorted by WatermarkField;
// ApplyChanges batches upserts/deletes into one _bulk request. Client
// construction is grounded on pkg/estuary/elastic.go's NewElasticEndpoint;
// the per-record esapi.IndexRequest/DeleteRequest idiom there is widened
// here into a bulk request since ApplyChanges receives a whole batch at
// once rather than one record at a time.
type ElasticsearchAdapter struct {
	es             *elasticsearch.Client
	index          string
	watermarkField string
}

// NewElasticsearchAdapter builds a client against addr (e.g.
// "http://localhost:9200") and wraps index.
func NewElasticsearchAdapter(addr, index, watermarkField string) (*ElasticsearchAdapter, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 10 * time.Second,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter: new elasticsearch client: %w", err)
	}
	log.Info().Str("index", index).Msg("elasticsearch adapter connected")

	return &ElasticsearchAdapter{es: es, index: index, watermarkField: watermarkField}, nil
}

func (a *ElasticsearchAdapter) GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error) {
	rangeFilter := map[string]any{"gt": "1970-01-01T00:00:00Z"}
	if cursor.Valid {
		rangeFilter["gt"] = cursor.Value
	}

	body := map[string]any{
		"size": 1000,
		"sort": []map[string]any{{a.watermarkField: "asc"}},
		"query": map[string]any{
			"range": map[string]any{a.watermarkField: rangeFilter},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: encode search body: %w", err)
	}

	res, err := a.es.Search(
		a.es.Search.WithContext(ctx),
		a.es.Search.WithIndex(a.index),
		a.es.Search.WithBody(&buf),
	)
	if err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: search error: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: decode search response: %w", err)
	}

	var cs record.ChangeSet
	latest := cursor
	for _, hit := range parsed.Hits.Hits {
		if wm, ok := hit.Source[a.watermarkField].(string); ok {
			if !latest.Valid || wm > latest.Value {
				latest = record.NewCursor(wm)
			}
		}
		if deleted, _ := hit.Source["_deleted"].(bool); deleted {
			cs.Deletes = append(cs.Deletes, hit.ID)
			continue
		}
		cs.Upserts = append(cs.Upserts, record.Record{ID: hit.ID, Fields: hit.Source})
	}
	return cs, latest, nil
}

func (a *ElasticsearchAdapter) ApplyChanges(ctx context.Context, changes record.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range changes.Upserts {
		meta := map[string]any{"index": map[string]any{"_index": a.index, "_id": rec.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("adapter: encode bulk meta: %w", err)
		}
		doc := make(map[string]any, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			doc[k] = v
		}
		doc[a.watermarkField] = time.Now().UTC().Format(time.RFC3339Nano)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("adapter: encode bulk doc: %w", err)
		}
	}
	for _, id := range changes.Deletes {
		meta := map[string]any{"update": map[string]any{"_index": a.index, "_id": id}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("adapter: encode bulk delete meta: %w", err)
		}
		body := map[string]any{"doc": map[string]any{"_deleted": true, a.watermarkField: time.Now().UTC().Format(time.RFC3339Nano)}}
		if err := enc.Encode(body); err != nil {
			return fmt.Errorf("adapter: encode bulk delete doc: %w", err)
		}
	}

	req := esapi.BulkRequest{Index: a.index, Body: &buf, Refresh: "true"}
	res, err := req.Do(ctx, a.es)
	if err != nil {
		return fmt.Errorf("adapter: bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("adapter: bulk response error: %s", res.Status())
	}
	return nil
}

func (a *ElasticsearchAdapter) SerializeCursor(cursor record.Cursor) string {
	if !cursor.Valid {
		return ""
	}
	return cursor.Value
}
