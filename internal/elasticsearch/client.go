// Package elasticsearch is the search-engine corpus backend. Each admitted
// patent is one document keyed by its content token; nearest-neighbour search
// still runs in process against the exact index, so Elasticsearch only has to
// store and enumerate.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

const defaultPageSize = 500

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses  []string
	Index      string
	Username   string
	Password   string
	Dimensions int // dense_vector dims; 0 lets Elasticsearch infer them
}

// Client stores corpus records in a single Elasticsearch index.
type Client struct {
	es         *elasticsearch.Client
	index      string
	dimensions int
	pageSize   int
}

var _ corpus.Store = (*Client)(nil)

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:         es,
		index:      config.Index,
		dimensions: config.Dimensions,
		pageSize:   defaultPageSize,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// patentDoc is the stored document shape.
type patentDoc struct {
	Token      string    `json:"token"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Claim1     string    `json:"claim_1"`
	Embedding  []float32 `json:"embedding,omitempty"`
	AdmittedAt time.Time `json:"admitted_at"`
}

func toDoc(rec corpus.Record) patentDoc {
	return patentDoc{
		Token:      rec.Key,
		Filename:   rec.Filename,
		Content:    rec.RawText,
		Title:      rec.Sections.Title,
		Abstract:   rec.Sections.Abstract,
		Claim1:     rec.Sections.Claim1,
		Embedding:  rec.Embedding,
		AdmittedAt: rec.AdmittedAt.UTC(),
	}
}

func (d patentDoc) record() corpus.Record {
	return corpus.Record{
		Key:        d.Token,
		Filename:   d.Filename,
		RawText:    d.Content,
		Sections:   models.Sections{Title: d.Title, Abstract: d.Abstract, Claim1: d.Claim1},
		Embedding:  d.Embedding,
		AdmittedAt: d.AdmittedAt,
	}
}

// indexMapping builds the mapping for the patents index.
func (c *Client) indexMapping() map[string]any {
	embedding := map[string]any{
		"type":       "dense_vector",
		"index":      true,
		"similarity": "l2_norm",
	}
	if c.dimensions > 0 {
		embedding["dims"] = c.dimensions
	}

	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"token":       map[string]any{"type": "keyword"},
				"filename":    map[string]any{"type": "keyword"},
				"content":     map[string]any{"type": "text", "analyzer": "english"},
				"title":       map[string]any{"type": "text"},
				"abstract":    map[string]any{"type": "text", "analyzer": "english"},
				"claim_1":     map[string]any{"type": "text", "analyzer": "english"},
				"admitted_at": map[string]any{"type": "date"},
				"embedding":   embedding,
			},
		},
	}
}

// CreateIndex creates the index with the patent mapping. It is a no-op if the index exists.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(c.indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

// Put indexes a record under its key, replacing any previous version.
// The call waits for a refresh so List observes the write.
func (c *Client) Put(ctx context.Context, rec corpus.Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record key is required")
	}
	if rec.AdmittedAt.IsZero() {
		rec.AdmittedAt = time.Now()
	}

	data, err := json.Marshal(toDoc(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal patent: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(rec.Key),
		c.es.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to index patent: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return fmt.Errorf("indexing patent %s: %w: %s", models.DocumentIDFromToken(rec.Key), models.ErrCorpusWriteConflict, res.String())
	}
	if res.IsError() {
		return fmt.Errorf("error indexing patent (status %d): %s", res.StatusCode, res.String())
	}
	return nil
}

type getResponse struct {
	Found  bool      `json:"found"`
	Source patentDoc `json:"_source"`
}

// Get retrieves a record by key.
func (c *Client) Get(ctx context.Context, key string) (*corpus.Record, error) {
	res, err := c.es.Get(c.index, key, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("patent %s: %w", models.DocumentIDFromToken(key), models.ErrNotFound)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !gr.Found {
		return nil, fmt.Errorf("patent %s: %w", models.DocumentIDFromToken(key), models.ErrNotFound)
	}

	rec := gr.Source.record()
	return &rec, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source patentDoc         `json:"_source"`
			Sort   []json.RawMessage `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// List enumerates every record in admission order, paging with search_after.
func (c *Client) List(ctx context.Context) ([]corpus.Record, error) {
	var (
		out   []corpus.Record
		after []json.RawMessage
	)
	for {
		query := map[string]any{
			"size":  c.pageSize,
			"query": map[string]any{"match_all": map[string]any{}},
			"sort": []map[string]any{
				{"admitted_at": "asc"},
				{"token": "asc"},
			},
		}
		if after != nil {
			query["search_after"] = after
		}

		sr, err := c.search(ctx, query)
		if err != nil {
			return nil, err
		}

		for _, hit := range sr.Hits.Hits {
			out = append(out, hit.Source.record())
		}
		if len(sr.Hits.Hits) < c.pageSize {
			return out, nil
		}
		after = sr.Hits.Hits[len(sr.Hits.Hits)-1].Sort
	}
}

func (c *Client) search(ctx context.Context, query map[string]any) (*searchResponse, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &searchResponse{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &sr, nil
}

// Delete removes the record stored under key.
func (c *Client) Delete(ctx context.Context, key string) error {
	res, err := c.es.Delete(c.index, key,
		c.es.Delete.WithContext(ctx),
		c.es.Delete.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("patent %s: %w", models.DocumentIDFromToken(key), models.ErrNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("delete error: %s", res.String())
	}
	return nil
}
