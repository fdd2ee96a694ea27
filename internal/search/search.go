// Package search keeps closed projects in an Elasticsearch index so they can
// be found by customer, address, closer or lender.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// DefaultIndex is used when no index name is configured.
const DefaultIndex = "projects"

// DefaultLimit caps the number of hits returned by Search.
const DefaultLimit = 50

var searchFields = []string{"customerName^3", "address", "closerName", "lender", "office"}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "userId":       {"type": "keyword"},
      "closedBy":     {"type": "keyword"},
      "closerId":     {"type": "keyword"},
      "status":       {"type": "keyword"},
      "customerName": {"type": "text"},
      "address":      {"type": "text"},
      "closerName":   {"type": "text"},
      "lender":       {"type": "text"},
      "office":       {"type": "text"},
      "dealNumber":   {"type": "integer"},
      "createdAt":    {"type": "date"}
    }
  }
}`

// ProjectIndex indexes and queries projects.
type ProjectIndex struct {
	client *elasticsearch.Client
	index  string
	limit  int
	logger logger.Logger
}

type Option func(*ProjectIndex)

func WithIndex(name string) Option {
	return func(p *ProjectIndex) {
		if name != "" {
			p.index = name
		}
	}
}

func WithLimit(n int) Option {
	return func(p *ProjectIndex) {
		if n > 0 {
			p.limit = n
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(p *ProjectIndex) { p.logger = log }
}

func NewProjectIndex(client *elasticsearch.Client, opts ...Option) *ProjectIndex {
	p := &ProjectIndex{
		client: client,
		index:  DefaultIndex,
		limit:  DefaultLimit,
		logger: logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Index returns the index name.
func (p *ProjectIndex) Index() string { return p.index }

// EnsureIndex creates the index with its mapping when it does not exist.
func (p *ProjectIndex) EnsureIndex(ctx context.Context) error {
	res, err := p.client.Indices.Exists([]string{p.index}, p.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return apperrors.NewSearchIndexFailedError(p.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = p.client.Indices.Create(p.index,
		p.client.Indices.Create.WithContext(ctx),
		p.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(p.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchIndexFailedError(p.index, responseError(res))
	}

	p.logger.Info("search index created", map[string]interface{}{"index": p.index})
	return nil
}

// IndexProject writes project under its id, replacing any earlier version.
func (p *ProjectIndex) IndexProject(ctx context.Context, project *models.Project) error {
	body, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}

	res, err := p.client.Index(p.index, bytes.NewReader(body),
		p.client.Index.WithContext(ctx),
		p.client.Index.WithDocumentID(project.ID),
	)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(p.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchIndexFailedError(p.index, responseError(res))
	}

	p.logger.Debug("project indexed", map[string]interface{}{
		"projectId": project.ID,
		"index":     p.index,
	})
	return nil
}

// Query selects projects from the index. Empty fields match everything.
type Query struct {
	Text    string
	OwnerID string
	// ParticipantID keeps projects the user owns, closed or is the closer on.
	ParticipantID string
}

// Search runs a full-text query. Owner and participant restrictions are
// applied by the index before the hit limit.
func (p *ProjectIndex) Search(ctx context.Context, q Query) ([]*models.Project, error) {
	body, err := json.Marshal(buildQuery(q, p.limit))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(p.index),
		p.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, apperrors.NewSearchIndexFailedError(p.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.NewSearchIndexFailedError(p.index, responseError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchIndexFailedError(p.index, fmt.Errorf("decode response: %w", err))
	}

	projects := make([]*models.Project, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var project models.Project
		if err := json.Unmarshal(hit.Source, &project); err != nil {
			p.logger.Warn("skipping undecodable search hit", map[string]interface{}{
				"id":    hit.ID,
				"error": err.Error(),
			})
			continue
		}
		projects = append(projects, &project)
	}
	return projects, nil
}

func buildQuery(q Query, limit int) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		boolQuery["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	} else {
		boolQuery["must"] = []interface{}{map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    searchFields,
				"fuzziness": "AUTO",
			},
		}}
	}
	var filters []interface{}
	if q.OwnerID != "" {
		filters = append(filters, term("userId", q.OwnerID))
	}
	if q.ParticipantID != "" {
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					term("userId", q.ParticipantID),
					term("closerId", q.ParticipantID),
					term("closedBy", q.ParticipantID),
				},
				"minimum_should_match": 1,
			},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{"_score", map[string]interface{}{"createdAt": "desc"}},
	}
}

func term(field, value string) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func responseError(res *esapi.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(raw)))
}
