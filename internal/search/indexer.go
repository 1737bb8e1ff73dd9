// Package search keeps every generation of destination recommendations in
// Elasticsearch so earlier suggestions for a trip stay browsable.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/models"
)

const DefaultIndex = "destination-recommendations"

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "conversationId": {"type": "keyword"},
      "tripId":         {"type": "long"},
      "grade":          {"type": "keyword"},
      "notes":          {"type": "text"},
      "createdAt":      {"type": "date"},
      "locations": {
        "properties": {
          "name":        {"type": "text", "fields": {"raw": {"type": "keyword"}}},
          "country":     {"type": "keyword"},
          "description": {"type": "text"}
        }
      }
    }
  }
}`

type RecommendationIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewRecommendationIndexer(client *elasticsearch.Client, index string, log logger.Logger) *RecommendationIndexer {
	if index == "" {
		index = DefaultIndex
	}
	return &RecommendationIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"index": index}),
	}
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (r *RecommendationIndexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{r.index}}.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{Index: r.index, Body: strings.NewReader(indexMapping)}.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", r.index, res.Status())
	}
	r.logger.Info("recommendation index created", nil)
	return nil
}

// Index stores one generation, keyed by its recommendations ID.
func (r *RecommendationIndexer) Index(ctx context.Context, rec *models.Recommendations) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("index recommendations %s: %w", rec.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index recommendations %s: %s", rec.ID, res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Recommendations `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// History returns up to size generations for the trip, newest first.
func (r *RecommendationIndexer) History(ctx context.Context, tripID int64, size int) ([]models.Recommendations, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"tripId": tripID},
		},
		"sort": []interface{}{
			map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc"}},
		},
	}
	body, _ := json.Marshal(query)

	res, err := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}.Do(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("search recommendations: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return []models.Recommendations{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search recommendations: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.Recommendations, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

// DeleteTrip removes every indexed generation of the trip.
func (r *RecommendationIndexer) DeleteTrip(ctx context.Context, tripID int64) error {
	body := fmt.Sprintf(`{"query":{"term":{"tripId":%d}}}`, tripID)
	refresh := true

	res, err := esapi.DeleteByQueryRequest{
		Index:   []string{r.index},
		Body:    strings.NewReader(body),
		Refresh: &refresh,
	}.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("delete recommendations for trip %d: %w", tripID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete recommendations for trip %d: %s", tripID, res.Status())
	}
	return nil
}
